// Package octoprint implements the minimal OctoPrint-compatible surface
// slicers use to push a job straight to the printer: a version banner and the
// local file upload endpoint. Printer address and credentials travel in the
// X-Api-Key header, so one server instance can front any number of devices.
package octoprint

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/turion/turionlink/core/printer"
	"github.com/turion/turionlink/infra/logger"
)

// Uploader stores project files on the device ahead of printing.
type Uploader interface {
	EnsureDir(path string) error
	Delete(name string) bool
	Store(name string, r io.Reader) error
	Close() error
}

// PrintStarter is the slice of the printer client the front-end drives.
type PrintStarter interface {
	Connect(ctx context.Context) error
	Disconnect()
	PrintProject(ctx context.Context, url string, amsMapping []int, opts ...printer.ProjectOption) (printer.Reply, error)
}

// Dialers construct per-request collaborators from the X-Api-Key settings.
type Dialers struct {
	FTPS    func(host, user, pass string) (Uploader, error)
	Printer func(host, user, pass string) (PrintStarter, error)
}

type handler struct {
	dial Dialers
	log  logger.Logger
}

// NewRouter builds the HTTP front-end.
func NewRouter(dial Dialers, log logger.Logger) http.Handler {
	if log == nil {
		log = logger.New("octoprint-api")
	}
	h := &handler{dial: dial, log: log}
	r := chi.NewRouter()
	r.Get("/api/version", h.version)
	r.Post("/api/files/local", h.selectFile)
	return r
}

func (h *handler) version(w http.ResponseWriter, r *http.Request) {
	if _, err := ParseAPIKey(r.Header.Get("X-Api-Key")); err != nil {
		http.Error(w, "missing or malformed X-Api-Key", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	// The text field must start with "OctoPrint" or OrcaSlicer refuses to
	// talk to us.
	_ = json.NewEncoder(w).Encode(map[string]string{
		"api":    "0.1",
		"server": "1.3.10",
		"text":   "OctoPrint Compatible Turion Link 1.0",
	})
}

func (h *handler) selectFile(w http.ResponseWriter, r *http.Request) {
	params, err := ParseAPIKey(r.Header.Get("X-Api-Key"))
	if err != nil {
		http.Error(w, "missing or malformed X-Api-Key", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(256 << 20); err != nil {
		http.Error(w, "bad multipart body", http.StatusBadRequest)
		return
	}
	// Only the upload subset of the files API is implemented.
	if cmd := r.FormValue("command"); cmd != "" && cmd != "select" {
		http.Error(w, "unsupported command", http.StatusServiceUnavailable)
		return
	}

	var fileName string
	var file io.ReadCloser
	for _, headers := range r.MultipartForm.File {
		if len(headers) == 0 {
			continue
		}
		fh := headers[0]
		f, err := fh.Open()
		if err != nil {
			http.Error(w, "unreadable upload", http.StatusBadRequest)
			return
		}
		fileName = path.Base(fh.Filename)
		file = f
		break
	}
	if file == nil {
		http.Error(w, "no file in request", http.StatusBadRequest)
		return
	}
	defer file.Close()

	// Only 3MF projects with embedded G-code can be started over MQTT.
	if !strings.HasSuffix(fileName, ".3mf") {
		http.Error(w, "only .3mf uploads supported", http.StatusServiceUnavailable)
		return
	}

	uploadPath := strings.Trim(r.FormValue("path"), "/")
	deviceURI := "file:///sdcard/" + fileName
	if uploadPath != "" {
		deviceURI = "file:///sdcard/" + uploadPath + "/" + fileName
	}

	h.log.Infof("uploading %s for %s", deviceURI, params.Host)
	if err := h.upload(params, uploadPath, fileName, file); err != nil {
		h.log.Errorf("upload failed: %v", err)
		http.Error(w, "upload failed", http.StatusInternalServerError)
		return
	}
	h.log.Infof("uploaded %s", deviceURI)

	if r.FormValue("print") == "true" {
		if err := h.startPrint(r.Context(), params, deviceURI, fileName); err != nil {
			h.log.Errorf("print start failed: %v", err)
			// 419 is what the reference bridge returns when the device
			// rejects the job; slicers surface it verbatim.
			http.Error(w, err.Error(), 419)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) upload(params *ConnectionParams, dir, name string, r io.Reader) error {
	up, err := h.dial.FTPS(params.Host, params.User, params.Pass)
	if err != nil {
		return err
	}
	defer up.Close()
	if dir != "" {
		if err := up.EnsureDir(dir); err != nil {
			return err
		}
	}
	up.Delete(name)
	return up.Store(name, r)
}

func (h *handler) startPrint(ctx context.Context, params *ConnectionParams, uri, name string) error {
	cli, err := h.dial.Printer(params.Host, params.User, params.Pass)
	if err != nil {
		return err
	}
	defer cli.Disconnect()
	if err := cli.Connect(ctx); err != nil {
		return err
	}
	reply, err := cli.PrintProject(ctx, uri, params.AMSMapping,
		printer.WithTaskName(name+" (via TurionLink)"),
		printer.WithTimelapse(params.Timelapse),
		printer.WithBedType(params.BedType),
		printer.WithBedLevelling(params.BedLevelling),
		printer.WithFlowCalibration(params.FlowCalibration),
		printer.WithVibrationCalibration(params.VibrationCalibration),
		printer.WithLayerInspect(params.LayerInspect),
	)
	if err != nil {
		return err
	}
	if !reply.Succeeded() {
		return &PrintRejectedError{Reason: reply.Reason()}
	}
	return nil
}

// PrintRejectedError is returned when the device refuses a project print.
type PrintRejectedError struct {
	Reason string
}

func (e *PrintRejectedError) Error() string {
	if e.Reason == "" {
		return "print rejected by device"
	}
	return "print rejected by device: " + e.Reason
}
