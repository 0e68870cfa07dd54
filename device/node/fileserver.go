package node

import (
	"log/slog"

	"github.com/dronemesh/relaynode/core/dispatch"
	"github.com/dronemesh/relaynode/core/proto"
)

// FileServerConfig configures a FileServer.
type FileServerConfig struct {
	FS dispatch.FileSystem

	// Logger for dispatch events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// FileServer answers Type/TextList/Text requests from FS and rejects every
// other Content variant, per §4.8's dispatch table.
type FileServer struct {
	cfg FileServerConfig
	log *slog.Logger
}

// NewFileServer creates a FileServer reading from cfg.FS.
func NewFileServer(cfg FileServerConfig) *FileServer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FileServer{cfg: cfg, log: logger.WithGroup("fileserver")}
}

// Dispatch implements dispatch.Handler.
func (s *FileServer) Dispatch(req dispatch.Request, sourceID proto.NodeID, rid uint16) dispatch.Response {
	switch req.Content.Kind {
	case dispatch.ContentType:
		return dispatch.NewTypeResponse(req.Compression, dispatch.FileServerKind)

	case dispatch.ContentTextList:
		names, err := s.cfg.FS.List()
		if err != nil {
			s.log.Warn("failed to list text directory", "source", sourceID, "rid", rid, "error", err)
			names = nil
		}
		return dispatch.NewListResponse(req.Compression, names)

	case dispatch.ContentText:
		data, err := s.cfg.FS.Read(req.Content.Path)
		if err != nil {
			s.log.Debug("text file not found", "path", req.Content.Path, "error", err)
			return dispatch.NewNotFoundResponse(req.Compression)
		}
		return dispatch.NewDataResponse(req.Compression, data)

	default:
		s.log.Debug("rejecting content variant not accepted by FileServer", "kind", req.Content.Kind)
		return dispatch.NewInvalidRequestResponse(req.Compression)
	}
}
