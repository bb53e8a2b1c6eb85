package http_handler

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	sdklogger "github.com/anthanhphan/gosdk/logger"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/minhtran-dev/gridstore/internal/config"
	"github.com/minhtran-dev/gridstore/internal/domain"
	"github.com/minhtran-dev/gridstore/internal/port"
)

// IDGenerator allocates file IDs for uploads.
type IDGenerator interface {
	Next() (int64, error)
}

type Server struct {
	app   *fiber.App
	cfg   *config.Config
	store port.FileStore
	idGen IDGenerator
}

func NewServer(cfg *config.Config, store port.FileStore, idGen IDGenerator) *Server {
	app := fiber.New(fiber.Config{
		BodyLimit: int(cfg.App.MaxFileSize),
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())

	s := &Server{
		app:   app,
		cfg:   cfg,
		store: store,
		idGen: idGen,
	}

	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	s.app.Post("/files", s.handleUpload)
	s.app.Get("/files", s.handleDownload)
	s.app.Get("/files/metadata", s.handleMetadata)
	s.app.Delete("/files", s.handleRemove)
}

func (s *Server) Start() error {
	return s.app.Listen(s.cfg.Server.Addr)
}

func (s *Server) Stop() error {
	return s.app.Shutdown()
}

// App exposes the underlying fiber app for in-process testing.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) sendJSONError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}

// selectorFromQuery builds the metadata selector: by id when given,
// otherwise by filename.
func selectorFromQuery(c *fiber.Ctx) (port.Document, error) {
	if id := c.Query("id"); id != "" {
		return port.Document{port.FieldID: id}, nil
	}
	if name := c.Query("filename"); name != "" {
		return port.Document{port.FieldFilename: name}, nil
	}
	return nil, errors.New("missing 'id' or 'filename' query parameter")
}

func (s *Server) handleUpload(c *fiber.Ctx) error {
	header, err := c.FormFile("file")
	if err != nil {
		return s.sendJSONError(c, fiber.StatusBadRequest, "Missing 'file' part")
	}

	src, err := header.Open()
	if err != nil {
		return s.sendJSONError(c, fiber.StatusBadRequest, fmt.Sprintf("Failed to open upload: %v", err))
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return s.sendJSONError(c, fiber.StatusInternalServerError, fmt.Sprintf("Failed to read upload: %v", err))
	}

	id, err := s.idGen.Next()
	if err != nil {
		return s.sendJSONError(c, fiber.StatusInternalServerError, fmt.Sprintf("Failed to allocate file id: %v", err))
	}
	fileID := strconv.FormatInt(id, 10)

	file, err := domain.NewFile(fileID, header.Filename, data, s.cfg.Store.ChunkSize, nil)
	if err != nil {
		return s.sendJSONError(c, fiber.StatusBadRequest, fmt.Sprintf("Invalid file: %v", err))
	}

	if err := s.store.InsertOne(c.Context(), file); err != nil {
		var invalid *port.InvalidFileError
		if errors.As(err, &invalid) {
			sdklogger.Errorw("Upload failed integrity validation", "file_id", fileID, "expected", invalid.Expected, "actual", invalid.Actual)
			return s.sendJSONError(c, fiber.StatusUnprocessableEntity, invalid.Error())
		}
		sdklogger.Errorw("Upload failed", "file_id", fileID, "file_name", header.Filename, "error", err.Error())
		return s.sendJSONError(c, fiber.StatusInternalServerError, fmt.Sprintf("Upload failed: %v", err))
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":     fileID,
		"md5":    file.Metadata.MD5,
		"length": file.Metadata.Length,
	})
}

func (s *Server) handleDownload(c *fiber.Ctx) error {
	selector, err := selectorFromQuery(c)
	if err != nil {
		return s.sendJSONError(c, fiber.StatusBadRequest, err.Error())
	}

	file, err := s.store.FindOne(c.Context(), selector)
	if err != nil {
		if errors.Is(err, port.ErrFileNotFound) {
			return s.sendJSONError(c, fiber.StatusNotFound, "File not found")
		}
		sdklogger.Errorw("Download failed", "error", err.Error())
		return s.sendJSONError(c, fiber.StatusInternalServerError, fmt.Sprintf("Download failed: %v", err))
	}

	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Metadata.Filename))
	c.Set("Content-Type", "application/octet-stream")
	return c.Send(file.Payload())
}

func (s *Server) handleMetadata(c *fiber.Ctx) error {
	selector, err := selectorFromQuery(c)
	if err != nil {
		return s.sendJSONError(c, fiber.StatusBadRequest, err.Error())
	}

	file, err := s.store.FindOne(c.Context(), selector)
	if err != nil {
		if errors.Is(err, port.ErrFileNotFound) {
			return s.sendJSONError(c, fiber.StatusNotFound, "File not found")
		}
		sdklogger.Warnw("Metadata lookup failed", "error", err.Error())
		return s.sendJSONError(c, fiber.StatusInternalServerError, fmt.Sprintf("Metadata lookup failed: %v", err))
	}

	return c.JSON(file.Metadata)
}

func (s *Server) handleRemove(c *fiber.Ctx) error {
	fileID := c.Query("id")
	if fileID == "" {
		return s.sendJSONError(c, fiber.StatusBadRequest, "Missing 'id' query parameter")
	}

	// Removal is idempotent: no lookup first, and an already-absent file
	// still answers 204.
	file := &domain.File{Metadata: domain.FileMetadata{ID: fileID}}
	if err := s.store.RemoveOne(c.Context(), file); err != nil {
		sdklogger.Errorw("Remove failed", "file_id", fileID, "error", err.Error())
		return s.sendJSONError(c, fiber.StatusInternalServerError, fmt.Sprintf("Remove failed: %v", err))
	}

	return c.SendStatus(fiber.StatusNoContent)
}
