package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/leapstack-labs/lspboot/internal/bootstrap"
	"github.com/leapstack-labs/lspboot/internal/hostcap"
)

// Resolver produces the launch descriptor for one handshake.
type Resolver interface {
	Resolve(ctx context.Context, req bootstrap.Request, n hostcap.Notifier) (*bootstrap.LaunchDescriptor, error)
}

// errExit stops the read loop after an exit notification.
var errExit = errors.New("exit requested")

// parseError marks a frame whose body is not valid JSON.
type parseError struct {
	err error
}

func (e *parseError) Error() string { return "error parsing message: " + e.err.Error() }
func (e *parseError) Unwrap() error { return e.err }

// invalidRequestError marks valid JSON that is not a well-formed message.
// id is the request id when one could be recovered, otherwise null.
type invalidRequestError struct {
	id  *json.RawMessage
	err error
}

func (e *invalidRequestError) Error() string { return "invalid request: " + e.err.Error() }
func (e *invalidRequestError) Unwrap() error { return e.err }

// frameError marks a header block without a usable Content-Length. The body
// cannot be delimited, so the reader skips ahead to the next header.
type frameError struct {
	reason string
}

func (e *frameError) Error() string { return "malformed frame: " + e.reason }

const contentLengthHeader = "content-length:"

// Server answers the initialize handshake over a Content-Length framed
// JSON-RPC stream. Every request with an id gets exactly one response.
type Server struct {
	resolver Resolver

	// I/O
	reader  *bufio.Reader
	writer  io.Writer
	writeMu sync.Mutex

	logger *slog.Logger

	// pending holds a header line found while skipping a malformed frame.
	pending string

	shutdown   bool
	shutdownMu sync.RWMutex
}

// NewServer creates a server reading requests from reader and writing
// responses and notifications to writer.
func NewServer(reader io.Reader, writer io.Writer, resolver Resolver, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		resolver: resolver,
		reader:   bufio.NewReader(reader),
		writer:   writer,
		logger:   logger,
	}
}

// Run processes messages until the stream ends, an exit notification
// arrives or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("handshake server starting")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := s.readMessage()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				s.logger.Info("client disconnected")
				return nil
			}
			var pe *parseError
			if errors.As(err, &pe) {
				s.sendResponse(nullID(), nil, &JSONRPCError{Code: CodeParseError, Message: pe.Error()})
				continue
			}
			var ie *invalidRequestError
			if errors.As(err, &ie) {
				s.sendResponse(ie.id, nil, &JSONRPCError{Code: CodeInvalidRequest, Message: ie.Error()})
				continue
			}
			var fe *frameError
			if errors.As(err, &fe) {
				s.logger.Warn("skipping malformed frame", "error", err)
				if err := s.skipToNextFrame(); err != nil {
					s.logger.Info("client disconnected")
					return nil
				}
				continue
			}
			s.logger.Error("error reading message", "error", err)
			continue
		}

		if err := s.handleMessage(ctx, msg); err != nil {
			if errors.Is(err, errExit) {
				s.logger.Info("server exit")
				return nil
			}
			s.logger.Error("error handling message", "method", msg.Method, "error", err)
		}
	}
}

// readMessage reads a JSON-RPC message from the input stream.
func (s *Server) readMessage() (*JSONRPCMessage, error) {
	contentLength := -1
	var bad string
	for {
		line, err := s.readLine()
		if err != nil {
			return nil, err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			break
		}

		name, value, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || n < 0 {
				bad = fmt.Sprintf("invalid Content-Length %q", strings.TrimSpace(value))
				continue
			}
			contentLength = n
		}
	}

	switch {
	case bad != "":
		return nil, &frameError{reason: bad}
	case contentLength < 0:
		return nil, &frameError{reason: "missing Content-Length header"}
	case contentLength == 0:
		return nil, &frameError{reason: "empty body"}
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(s.reader, body); err != nil {
		return nil, fmt.Errorf("error reading body: %w", err)
	}
	return decodeMessage(body)
}

func (s *Server) readLine() (string, error) {
	if s.pending != "" {
		line := s.pending
		s.pending = ""
		return line, nil
	}
	line, err := s.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	return line, nil
}

// skipToNextFrame discards input up to the next Content-Length header, which
// may follow an undelimited body on the same line.
func (s *Server) skipToNextFrame() error {
	for {
		line, err := s.reader.ReadString('\n')
		if i := indexHeader(line); i >= 0 {
			s.pending = line[i:]
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func indexHeader(line string) int {
	n := len(contentLengthHeader)
	for i := 0; i+n <= len(line); i++ {
		if strings.EqualFold(line[i:i+n], contentLengthHeader) {
			return i
		}
	}
	return -1
}

// decodeMessage parses a frame body. Valid JSON that does not fit the
// message shape is an invalid request rather than a parse error, and keeps
// its id when the id itself is readable.
func decodeMessage(body []byte) (*JSONRPCMessage, error) {
	var msg JSONRPCMessage
	err := json.Unmarshal(body, &msg)
	if err == nil {
		return &msg, nil
	}
	if !json.Valid(body) {
		return nil, &parseError{err: err}
	}

	var head struct {
		ID *json.RawMessage `json:"id"`
	}
	id := nullID()
	if json.Unmarshal(body, &head) == nil && head.ID != nil {
		id = head.ID
	}
	return nil, &invalidRequestError{id: id, err: err}
}

// sendResponse sends a JSON-RPC response.
func (s *Server) sendResponse(id *json.RawMessage, result any, rpcErr *JSONRPCError) {
	msg := JSONRPCMessage{
		JSONRPC: "2.0",
		ID:      id,
	}

	if rpcErr != nil {
		msg.Error = rpcErr
	} else {
		resultBytes, err := json.Marshal(result)
		if err != nil {
			s.logger.Error("error marshaling result", "error", err)
			msg.Error = &JSONRPCError{Code: CodeInternalError, Message: err.Error()}
		} else {
			msg.Result = resultBytes
		}
	}

	s.writeMessage(&msg)
}

// sendNotification sends a JSON-RPC notification (no ID).
func (s *Server) sendNotification(method string, params any) {
	msg := JSONRPCMessage{
		JSONRPC: "2.0",
		Method:  method,
	}

	if params != nil {
		paramsBytes, _ := json.Marshal(params)
		msg.Params = paramsBytes
	}

	s.writeMessage(&msg)
}

// writeMessage writes a JSON-RPC message to the output stream.
func (s *Server) writeMessage(msg *JSONRPCMessage) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	body, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("error marshaling message", "error", err)
		return
	}

	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(body))
	if _, err := io.WriteString(s.writer, header); err != nil {
		s.logger.Error("error writing message", "error", err)
		return
	}
	if _, err := s.writer.Write(body); err != nil {
		s.logger.Error("error writing message", "error", err)
	}
}

// ShowMessage implements hostcap.Notifier with window/showMessage.
func (s *Server) ShowMessage(t hostcap.MessageType, text string) {
	s.sendNotification("window/showMessage", &ShowMessageParams{Type: t, Message: text})
}

// LogMessage implements hostcap.Notifier with window/logMessage.
func (s *Server) LogMessage(t hostcap.MessageType, text string) {
	s.sendNotification("window/logMessage", &LogMessageParams{Type: t, Message: text})
}

// handleMessage dispatches a message. Only initialize does real work; any
// other request is rejected.
func (s *Server) handleMessage(ctx context.Context, msg *JSONRPCMessage) error {
	s.logger.Debug("received", "method", msg.Method)

	if msg.Method == "" {
		// A response from the client; nothing was asked of it.
		s.logger.Debug("ignoring message without method")
		return nil
	}

	switch msg.Method {
	case "initialize":
		return s.handleInitialize(ctx, msg)
	case "initialized":
		return nil
	case "shutdown":
		return s.handleShutdown(msg)
	case "exit":
		return errExit
	default:
		if msg.ID == nil {
			s.logger.Warn("dropping unsupported notification", "method", msg.Method)
			return nil
		}
		err := bootstrap.UnsupportedMethod(msg.Method)
		s.sendResponse(msg.ID, nil, &JSONRPCError{
			Code:    CodeMethodNotFound,
			Message: err.Error(),
			Data:    ErrorData{Kind: string(err.Kind)},
		})
		return nil
	}
}

func (s *Server) handleInitialize(ctx context.Context, msg *JSONRPCMessage) error {
	if msg.ID == nil {
		return fmt.Errorf("initialize sent as a notification")
	}

	s.shutdownMu.RLock()
	down := s.shutdown
	s.shutdownMu.RUnlock()
	if down {
		s.sendResponse(msg.ID, nil, &JSONRPCError{Code: CodeInvalidRequest, Message: "server is shutting down"})
		return nil
	}

	req, err := parseInitialize(msg.Params)
	if err != nil {
		s.replyError(msg.ID, err)
		return err
	}

	desc, err := s.resolver.Resolve(ctx, req, s)
	if err != nil {
		s.replyError(msg.ID, err)
		return err
	}

	s.logger.Info("launch resolved", "executable", desc.Executable.Value, "kind", desc.Executable.Kind)
	s.sendResponse(msg.ID, desc, nil)
	return nil
}

func (s *Server) handleShutdown(msg *JSONRPCMessage) error {
	s.shutdownMu.Lock()
	s.shutdown = true
	s.shutdownMu.Unlock()

	if msg.ID != nil {
		s.sendResponse(msg.ID, nil, nil)
	}
	s.logger.Info("server shutdown")
	return nil
}

// replyError answers id with a structured failure, raising a user-visible
// notification first for the failures that have a remedy.
func (s *Server) replyError(id *json.RawMessage, err error) {
	var be *bootstrap.Error
	if !errors.As(err, &be) {
		s.sendResponse(id, nil, &JSONRPCError{Code: CodeInternalError, Message: err.Error()})
		return
	}

	if be.Notify() {
		text := be.Error()
		if remedy := be.Remedy(); remedy != "" {
			text += ". " + remedy
		}
		s.ShowMessage(hostcap.MessageError, text)
	}

	s.sendResponse(id, nil, &JSONRPCError{
		Code:    codeFor(be.Kind),
		Message: be.Error(),
		Data:    ErrorData{Kind: string(be.Kind), Remedy: be.Remedy()},
	})
}

func codeFor(kind bootstrap.Kind) int {
	switch kind {
	case bootstrap.KindMalformedRequest:
		return CodeInvalidParams
	case bootstrap.KindUnsupportedMethod:
		return CodeMethodNotFound
	default:
		return CodeRequestFailed
	}
}

// parseInitialize decodes the initialize params into a bootstrap request.
func parseInitialize(raw json.RawMessage) (bootstrap.Request, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return bootstrap.Request{}, bootstrap.Malformed(errors.New("initialize params are required"))
	}

	var params InitializeParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return bootstrap.Request{}, bootstrap.Malformed(err)
	}

	opts := params.InitializationOptions
	if opts == nil {
		return bootstrap.Request{}, nil
	}
	return bootstrap.Request{
		ServerPath: strings.TrimSpace(opts.EffectiveServerPath()),
		LanguageID: opts.LanguageID,
		Pattern:    opts.Pattern,
		Options:    opts.Options,
	}, nil
}

func nullID() *json.RawMessage {
	id := json.RawMessage("null")
	return &id
}
