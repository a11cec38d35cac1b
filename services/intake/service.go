// Package intake is the local receiving end of the pipeline: a multipart
// upload endpoint that files every received document under its data id.
// It exists so the harvester can be exercised end to end without any
// external system.
package intake

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"datago-harvester/lib/textutil"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/intake")

// 256 MiB of form data in memory before spilling to disk
const maxMultipartMemory = 256 << 20

type Config struct {
	Port       int    `json:"port"`
	StorageDir string `json:"storage_dir"`
	// AuthToken, when set, must arrive as a bearer token on every upload.
	AuthToken string `json:"auth_token"`
}

func DefaultConfig() Config {
	return Config{
		Port:       11311,
		StorageDir: "intake_storage",
	}
}

type Service struct {
	config Config
}

func NewService(config Config) Service {
	return Service{config: config}
}

func (s Service) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/upload", s.handleUpload)
}

type uploadResponse struct {
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	DataID   string `json:"data_id,omitempty"`
	Filename string `json:"filename,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, res uploadResponse) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(res)
	if err != nil {
		slog.Warn("failed to write upload response", "err", err)
	}
}

func (s Service) authorized(r *http.Request) bool {
	if s.config.AuthToken == "" {
		return true
	}
	header := r.Header.Get("authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	return ok && token == s.config.AuthToken
}

func (s Service) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "intake:Upload")
	defer span.End()

	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, uploadResponse{Error: "invalid or missing bearer token"})
		return
	}

	err := r.ParseMultipartForm(maxMultipartMemory)
	if err != nil {
		span.SetStatus(codes.Error, "parse multipart form")
		span.RecordError(err)
		writeJSON(w, http.StatusBadRequest, uploadResponse{Error: "malformed multipart body: " + err.Error()})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, uploadResponse{Error: "missing file part"})
		return
	}
	defer file.Close()

	dataID := r.FormValue("data_id")
	if dataID == "" {
		writeJSON(w, http.StatusBadRequest, uploadResponse{Error: "missing data_id field"})
		return
	}

	filename := textutil.SafeName(header.Filename)
	if filename == "" {
		filename = "upload.bin"
	}

	dir := filepath.Join(s.config.StorageDir, textutil.SafeName(dataID))
	err = os.MkdirAll(dir, 0755)
	if err != nil {
		span.SetStatus(codes.Error, "create storage directory")
		span.RecordError(err)
		writeJSON(w, http.StatusInternalServerError, uploadResponse{Error: "storage unavailable"})
		return
	}

	dest, err := os.Create(filepath.Join(dir, filename))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, uploadResponse{Error: "storage unavailable"})
		return
	}
	defer dest.Close()

	size, err := io.Copy(dest, file)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, uploadResponse{Error: "failed to persist file"})
		return
	}

	// the structured auto_description wins over the free-text description
	desc := r.FormValue("auto_description")
	if desc == "" {
		desc = r.FormValue("description")
	}
	if desc != "" {
		err = os.WriteFile(filepath.Join(dir, "description.json"), []byte(desc), 0644)
		if err != nil {
			slog.WarnContext(ctx, "failed to persist description", "data_id", dataID, "err", err)
		}
	}

	slog.InfoContext(ctx, "file received", "data_id", dataID, "filename", filename, "size", size)
	writeJSON(w, http.StatusOK, uploadResponse{
		Success:  true,
		DataID:   dataID,
		Filename: filename,
		Size:     size,
	})
}
