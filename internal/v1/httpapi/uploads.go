package httpapi

import (
	"bytes"
	"image"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/board"
	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/logging"
	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/metrics"
)

// maxUploadSize caps an uploaded image at 10 MiB.
const maxUploadSize = 10 << 20

const (
	defaultImageWidth  = 200
	defaultImageHeight = 200
)

// UploadImage handles POST /api/boards/uploadImage?room=<name>. The image is
// stored under a random name, its dimensions probed, and a synthetic
// shapeAdded broadcast into the target room.
func (s *Server) UploadImage(c *gin.Context) {
	roomName := c.Query("room")
	if roomName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "room query parameter is required"})
		return
	}
	if _, ok := s.hub.FindRoomByName(roomName); !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Room not found"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		file, header, err = c.Request.FormFile("file")
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "image file is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "failed to read upload"})
		return
	}

	// The client filename is only consulted for its extension, never stored.
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !board.KnownImageExt(ext) {
		ext = ".png"
	}
	filename := uuid.NewString() + ext

	if err := board.WriteImage(s.boards.ImagesDir(), filename, data); err != nil {
		logging.Error(c.Request.Context(), "Image write failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "failed to store image"})
		return
	}

	width, height := probeDimensions(data)
	// Drawing clients on other origins load the image by this URL, so it has
	// to be absolute.
	imageURL := requestScheme(c) + "://" + c.Request.Host + "/images/" + filename

	if err := s.hub.BroadcastImageShape(roomName, imageURL, width, height); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Room not found"})
		return
	}

	metrics.ImagesUploaded.Inc()
	logging.Info(c.Request.Context(), "Image uploaded",
		zap.String("room", roomName), zap.String("filename", filename),
		zap.Int("bytes", len(data)))

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"imageUrl": imageURL,
		"filename": filename,
	})
}

func requestScheme(c *gin.Context) string {
	if c.Request.TLS != nil {
		return "https"
	}
	return "http"
}

// probeDimensions decodes just the image header. Undecodable uploads fall
// back to a 200x200 placeholder size.
func probeDimensions(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return defaultImageWidth, defaultImageHeight
	}
	return cfg.Width, cfg.Height
}
