package httpapi

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/AdeepaK2/board.com-collaborative-whiteboard-with-java-networking/internal/v1/board"
)

// ServeImage handles GET /images/{name}. Traversal attempts get 403.
func (s *Server) ServeImage(c *gin.Context) {
	name := c.Param("name")
	if !board.ValidImageName(name) {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "Invalid filename"})
		return
	}

	data, err := board.ReadImage(s.boards.ImagesDir(), name)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Image not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to read image"})
		return
	}

	c.Data(http.StatusOK, board.ContentTypeByExt(name), data)
}
