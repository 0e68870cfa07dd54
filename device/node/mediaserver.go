package node

import (
	"log/slog"

	"github.com/dronemesh/relaynode/core/dispatch"
	"github.com/dronemesh/relaynode/core/proto"
)

// MediaServerConfig configures a MediaServer.
type MediaServerConfig struct {
	FS dispatch.FileSystem

	// Logger for dispatch events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// MediaServer answers Type/MediaList/Media requests from FS and rejects
// every other Content variant, per §4.8's dispatch table.
type MediaServer struct {
	cfg MediaServerConfig
	log *slog.Logger
}

// NewMediaServer creates a MediaServer reading from cfg.FS.
func NewMediaServer(cfg MediaServerConfig) *MediaServer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MediaServer{cfg: cfg, log: logger.WithGroup("mediaserver")}
}

// Dispatch implements dispatch.Handler.
func (s *MediaServer) Dispatch(req dispatch.Request, sourceID proto.NodeID, rid uint16) dispatch.Response {
	switch req.Content.Kind {
	case dispatch.ContentType:
		return dispatch.NewTypeResponse(req.Compression, dispatch.MediaServerKind)

	case dispatch.ContentMediaList:
		names, err := s.cfg.FS.List()
		if err != nil {
			s.log.Warn("failed to list media directory", "source", sourceID, "rid", rid, "error", err)
			names = nil
		}
		return dispatch.NewListResponse(req.Compression, names)

	case dispatch.ContentMedia:
		data, err := s.cfg.FS.Read(req.Content.Path)
		if err != nil {
			s.log.Debug("media file not found", "path", req.Content.Path, "error", err)
			return dispatch.NewNotFoundResponse(req.Compression)
		}
		return dispatch.NewDataResponse(req.Compression, data)

	default:
		s.log.Debug("rejecting content variant not accepted by MediaServer", "kind", req.Content.Kind)
		return dispatch.NewInvalidRequestResponse(req.Compression)
	}
}
