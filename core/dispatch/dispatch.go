// Package dispatch defines the request/response schema and the narrow
// interface a server variant implements to answer a decoded request, per
// §4.8. The wire encoding here is this project's own — §1 leaves the
// request/response schema fields "opaque byte serialization", so nothing in
// the reference corpus or the original implementation's bincode-derived
// messages constrains the exact layout; only the Content variant table and
// the compression-echo rule are load-bearing.
package dispatch

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/dronemesh/relaynode/core/codec"
	"github.com/dronemesh/relaynode/core/proto"
)

// ErrShortBuffer is returned when a Decode call runs out of bytes mid-field.
var ErrShortBuffer = errors.New("dispatch: buffer too short")

// ContentKind enumerates the request content variants of §4.8's table.
type ContentKind uint8

const (
	ContentType ContentKind = iota
	ContentTextList
	ContentText
	ContentMediaList
	ContentMedia
)

func (k ContentKind) String() string {
	switch k {
	case ContentType:
		return "Type"
	case ContentTextList:
		return "TextList"
	case ContentText:
		return "Text"
	case ContentMediaList:
		return "MediaList"
	case ContentMedia:
		return "Media"
	default:
		return fmt.Sprintf("ContentKind(%d)", uint8(k))
	}
}

// Content is a request's content variant. Path is only meaningful for
// ContentText and ContentMedia.
type Content struct {
	Kind ContentKind
	Path string
}

// Request is the typed request message a dispatcher decodes a fragment
// reassembler's payload into.
type Request struct {
	Compression codec.Compression
	Content     Content
}

// ServerKind names which concrete server answered a Type request.
type ServerKind uint8

const (
	FileServerKind ServerKind = iota
	MediaServerKind
)

func (k ServerKind) String() string {
	switch k {
	case FileServerKind:
		return "FileServer"
	case MediaServerKind:
		return "MediaServer"
	default:
		return fmt.Sprintf("ServerKind(%d)", uint8(k))
	}
}

// ResponseKind enumerates the shapes a Response's payload can take.
type ResponseKind uint8

const (
	ResponseServerType ResponseKind = iota
	ResponseList
	ResponseData
	ResponseNotFound
	ResponseInvalidRequest
)

func (k ResponseKind) String() string {
	switch k {
	case ResponseServerType:
		return "ServerType"
	case ResponseList:
		return "List"
	case ResponseData:
		return "Data"
	case ResponseNotFound:
		return "NotFound"
	case ResponseInvalidRequest:
		return "InvalidRequest"
	default:
		return fmt.Sprintf("ResponseKind(%d)", uint8(k))
	}
}

// Response is the typed response message a Handler produces. Compression
// always echoes the originating Request's selector, per §4.8.
type Response struct {
	Compression codec.Compression
	Kind        ResponseKind
	ServerKind  ServerKind // meaningful only when Kind == ResponseServerType
	Names       []string   // meaningful only when Kind == ResponseList
	Data        []byte     // meaningful only when Kind == ResponseData
}

// NewTypeResponse builds the ResponseServerType reply to a Type request.
func NewTypeResponse(comp codec.Compression, kind ServerKind) Response {
	return Response{Compression: comp, Kind: ResponseServerType, ServerKind: kind}
}

// NewListResponse builds a ResponseList reply enumerating names.
func NewListResponse(comp codec.Compression, names []string) Response {
	return Response{Compression: comp, Kind: ResponseList, Names: names}
}

// NewDataResponse builds a ResponseData reply carrying the file bytes read.
func NewDataResponse(comp codec.Compression, data []byte) Response {
	return Response{Compression: comp, Kind: ResponseData, Data: data}
}

// NewNotFoundResponse builds the reply to a Text/Media request naming a
// path that could not be read.
func NewNotFoundResponse(comp codec.Compression) Response {
	return Response{Compression: comp, Kind: ResponseNotFound}
}

// NewInvalidRequestResponse builds the reply to a Content variant a server
// does not accept, per §4.8's table.
func NewInvalidRequestResponse(comp codec.Compression) Response {
	return Response{Compression: comp, Kind: ResponseInvalidRequest}
}

// Handler answers a decoded Request with a Response. device/node.FileServer
// and device/node.MediaServer are the two implementations, differing only
// in which FileSystem they read from and which Content variants they
// accept, per §4.8's table.
type Handler interface {
	Dispatch(req Request, sourceID proto.NodeID, rid uint16) Response
}

// FileSystem abstracts the directory a server lists and reads from. This is
// deliberately the smallest interface that satisfies §4.8 ("list-and-read
// contract"), mirroring the reference repo's PostStore/ClientStore
// pluggable-backend pattern: one narrow interface, swappable backends.
type FileSystem interface {
	List() ([]string, error)
	Read(name string) ([]byte, error)
}

// Encode serializes a Request to its wire form.
func (r Request) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(r.Compression))
	buf.WriteByte(byte(r.Content.Kind))
	if r.Content.Kind == ContentText || r.Content.Kind == ContentMedia {
		writeString(&buf, r.Content.Path)
	}
	return buf.Bytes()
}

// DecodeRequest parses the wire form produced by Request.Encode.
func DecodeRequest(data []byte) (Request, error) {
	r := bytes.NewReader(data)
	comp, err := r.ReadByte()
	if err != nil {
		return Request{}, ErrShortBuffer
	}
	kindByte, err := r.ReadByte()
	if err != nil {
		return Request{}, ErrShortBuffer
	}
	kind := ContentKind(kindByte)
	content := Content{Kind: kind}
	if kind == ContentText || kind == ContentMedia {
		path, err := readString(r)
		if err != nil {
			return Request{}, err
		}
		content.Path = path
	}
	return Request{Compression: codec.Compression(comp), Content: content}, nil
}

// Encode serializes a Response to its wire form.
func (resp Response) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(resp.Compression))
	buf.WriteByte(byte(resp.Kind))
	switch resp.Kind {
	case ResponseServerType:
		buf.WriteByte(byte(resp.ServerKind))
	case ResponseList:
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(len(resp.Names)))
		buf.Write(n[:])
		for _, name := range resp.Names {
			writeString(&buf, name)
		}
	case ResponseData:
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(len(resp.Data)))
		buf.Write(n[:])
		buf.Write(resp.Data)
	}
	return buf.Bytes()
}

// DecodeResponse parses the wire form produced by Response.Encode.
func DecodeResponse(data []byte) (Response, error) {
	r := bytes.NewReader(data)
	comp, err := r.ReadByte()
	if err != nil {
		return Response{}, ErrShortBuffer
	}
	kindByte, err := r.ReadByte()
	if err != nil {
		return Response{}, ErrShortBuffer
	}
	resp := Response{Compression: codec.Compression(comp), Kind: ResponseKind(kindByte)}
	switch resp.Kind {
	case ResponseServerType:
		sk, err := r.ReadByte()
		if err != nil {
			return Response{}, ErrShortBuffer
		}
		resp.ServerKind = ServerKind(sk)
	case ResponseList:
		count, err := readUint32(r)
		if err != nil {
			return Response{}, err
		}
		names := make([]string, 0, count)
		for i := uint32(0); i < count; i++ {
			name, err := readString(r)
			if err != nil {
				return Response{}, err
			}
			names = append(names, name)
		}
		resp.Names = names
	case ResponseData:
		n, err := readUint32(r)
		if err != nil {
			return Response{}, err
		}
		data := make([]byte, n)
		if _, err := io.ReadFull(r, data); err != nil {
			return Response{}, ErrShortBuffer
		}
		resp.Data = data
	}
	return resp, nil
}

func writeString(buf *bytes.Buffer, s string) {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(s)))
	buf.Write(n[:])
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", ErrShortBuffer
	}
	return string(b), nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, ErrShortBuffer
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}
