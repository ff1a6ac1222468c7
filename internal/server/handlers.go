package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/crystaldolphin/canvasagent/internal/agent"
	"github.com/crystaldolphin/canvasagent/internal/mcp"
	"github.com/crystaldolphin/canvasagent/internal/studio"
)

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req studio.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" && req.Operation == nil {
		writeError(w, http.StatusBadRequest, "bad_request", "message or aiOperation is required")
		return
	}

	resp, err := s.studio.Chat(r.Context(), req)
	if err != nil {
		code := studio.Classify(err)
		slog.Error("server: chat failed", "session", resp.SessionID, "code", code, "err", err)
		writeError(w, http.StatusInternalServerError, code, studio.UserMessage(err))
		return
	}
	if resp.ToolCalls == nil {
		resp.ToolCalls = []agent.ToolCallIntent{}
	}
	if resp.ToolResults == nil {
		resp.ToolResults = []mcp.ToolResult{}
	}
	writeJSON(w, http.StatusOK, resp)
}

type toolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	tools, err := s.studio.Tools(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, studio.Classify(err), err.Error())
		return
	}
	out := make([]toolInfo, 0, len(tools))
	for _, t := range tools {
		out = append(out, toolInfo{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": out})
}

type callToolRequest struct {
	ToolName string         `json:"toolName"`
	Args     map[string]any `json:"args"`
}

func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	var req callToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
		return
	}
	if req.ToolName == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "toolName is required")
		return
	}
	if req.Args == nil {
		req.Args = map[string]any{}
	}
	result, err := s.studio.CallTool(r.Context(), req.ToolName, req.Args)
	if err != nil {
		writeError(w, http.StatusInternalServerError, studio.Classify(err), studio.UserMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type uploadResponse struct {
	URL         string          `json:"url"`
	MCPResponse *mcp.ToolResult `json:"mcpResponse,omitempty"`
	Filename    string          `json:"filename"`
	MimeType    string          `json:"mimeType"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := int64(s.cfg.MaxUploadMB) << 20
	if limit <= 0 {
		limit = 20 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "read upload: "+err.Error())
		return
	}
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mimeType, "image/") && !strings.HasPrefix(mimeType, "video/") {
		writeError(w, http.StatusBadRequest, "unsupported_media", "only image and video uploads are accepted")
		return
	}

	name := uuid.NewString() + uploadExt(header.Filename, mimeType)
	if err := os.WriteFile(filepath.Join(s.uploadDir, name), data, 0o644); err != nil {
		slog.Error("server: store upload", "err", err)
		writeError(w, http.StatusInternalServerError, "storage_failed", "could not store upload")
		return
	}

	resp := uploadResponse{
		URL:      strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/uploads/" + name,
		Filename: header.Filename,
		MimeType: mimeType,
	}
	if result, ok := s.studio.ForwardUpload(r.Context(), studio.Upload{
		Filename: header.Filename,
		MimeType: mimeType,
		DataURI:  "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
	}); ok {
		resp.MCPResponse = &result
	}
	writeJSON(w, http.StatusOK, resp)
}

func uploadExt(filename, mimeType string) string {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" && len(ext) <= 6 {
		return ext
	}
	if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
		return exts[0]
	}
	return ""
}

func (s *Server) handleServeUpload(w http.ResponseWriter, r *http.Request) {
	name := filepath.Base(chi.URLParam(r, "*"))
	if name == "." || name == "/" || strings.HasPrefix(name, ".") {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, filepath.Join(s.uploadDir, name))
}

func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request) {
	items, err := s.studio.Gallery(r.Context(), r.URL.Query().Get("session"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
