package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/board"
	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/logging"
	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/session"
)

// saveRequest accepts either a live roomId to snapshot or explicit
// shape/stroke arrays from the client.
type saveRequest struct {
	BoardName     string            `json:"boardName" binding:"required"`
	RoomID        string            `json:"roomId"`
	Username      string            `json:"username" binding:"required"`
	Shapes        []json.RawMessage `json:"shapes"`
	Strokes       []json.RawMessage `json:"strokes"`
	EraserStrokes []json.RawMessage `json:"eraserStrokes"`
}

// SaveBoard handles POST /api/boards/save.
func (s *Server) SaveBoard(c *gin.Context) {
	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "boardName and username are required"})
		return
	}

	shapes, strokes := req.Shapes, req.Strokes
	if req.RoomID != "" {
		roomShapes, roomStrokes, err := s.hub.SnapshotRoom(session.RoomIDType(req.RoomID))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Room not found"})
			return
		}
		shapes, strokes = roomShapes, roomStrokes
	}

	boardID, err := s.boards.Save(req.BoardName, req.RoomID, req.Username, shapes, strokes, req.EraserStrokes)
	if err != nil {
		logging.Error(c.Request.Context(), "Board save failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to save board"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"boardId": boardID,
		"message": "Board saved successfully",
	})
}

// ListBoards handles GET /api/boards/list.
func (s *Server) ListBoards(c *gin.Context) {
	boards, err := s.boards.List()
	if err != nil {
		logging.Error(c.Request.Context(), "Board list failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to list boards"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "boards": boards})
}

// LoadBoard handles GET /api/boards/load/{boardId}.
func (s *Server) LoadBoard(c *gin.Context) {
	data, err := s.boards.Load(c.Param("boardId"))
	if err != nil {
		if errors.Is(err, board.ErrBoardNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Board not found"})
			return
		}
		logging.Error(c.Request.Context(), "Board load failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to load board"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "board": data})
}

// DeleteBoard handles DELETE /api/boards/delete/{boardId}. Only the saver
// may delete; anyone else gets the same 404 as a missing board.
func (s *Server) DeleteBoard(c *gin.Context) {
	requestor := c.Query("username")
	if requestor == "" {
		var body struct {
			Username string `json:"username"`
		}
		if err := c.ShouldBindJSON(&body); err == nil {
			requestor = body.Username
		}
	}

	err := s.boards.Delete(c.Param("boardId"), requestor)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Board deleted"})
	case errors.Is(err, board.ErrBoardNotFound), errors.Is(err, board.ErrNotOwner):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Board not found"})
	default:
		logging.Error(c.Request.Context(), "Board delete failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to delete board"})
	}
}

// ExportBoard handles POST /api/boards/export.
func (s *Server) ExportBoard(c *gin.Context) {
	var req struct {
		BoardID string `json:"boardId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "boardId is required"})
		return
	}

	data, err := s.boards.Export(req.BoardID)
	if err != nil {
		if errors.Is(err, board.ErrBoardNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Board not found"})
			return
		}
		logging.Error(c.Request.Context(), "Board export failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to export board"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

// ImportBoard handles POST /api/boards/import.
func (s *Server) ImportBoard(c *gin.Context) {
	var req struct {
		BoardName string          `json:"boardName" binding:"required"`
		Data      json.RawMessage `json:"data" binding:"required"`
		Username  string          `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "boardName, data and username are required"})
		return
	}

	boardID, err := s.boards.Import(req.BoardName, req.Data, req.Username)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid board document"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "boardId": boardID})
}

// GenerateTimelapse handles POST /api/boards/generate-timelapse. The render
// runs in the background; clients poll the status endpoint.
func (s *Server) GenerateTimelapse(c *gin.Context) {
	var req struct {
		BoardID  string `json:"boardId" binding:"required"`
		Duration int    `json:"duration"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "boardId is required"})
		return
	}

	jobID, err := s.timelapse.Generate(req.BoardID, req.Duration)
	if err != nil {
		if errors.Is(err, board.ErrBoardNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Board not found"})
			return
		}
		logging.Error(c.Request.Context(), "Timelapse start failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to start timelapse"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"jobId": jobID, "status": board.JobQueued})
}

// TimelapseStatus handles GET /api/boards/timelapse-status/{jobId}.
func (s *Server) TimelapseStatus(c *gin.Context) {
	status, err := s.timelapse.Status(c.Param("jobId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Job not found"})
		return
	}

	resp := gin.H{
		"status":   status.Status,
		"progress": status.Progress,
		"message":  status.Message,
	}
	if status.VideoURL != "" {
		resp["videoUrl"] = status.VideoURL
	}
	c.JSON(http.StatusOK, resp)
}

// TimelapseVideo handles GET /api/boards/timelapse-video/{jobId}.
func (s *Server) TimelapseVideo(c *gin.Context) {
	jobID := c.Param("jobId")
	path, err := s.timelapse.VideoPath(jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Video not available"})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+jobID+`.mp4"`)
	c.Header("Content-Type", "video/mp4")
	c.File(path)
}
