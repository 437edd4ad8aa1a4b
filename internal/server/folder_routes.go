package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/taskfolders/internal/folders"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type createFolderForm struct {
	Title string `form:"taskTitle"`
}

type createTaskForm struct {
	Name string `form:"newTask"`
}

func (h *httpHandler) handleDashboard(c *gin.Context) {
	principal, _ := currentPrincipal(c)
	owned, err := h.folders.ListFolders(c.Request.Context(), principal)
	if err != nil {
		h.fail(c, "failed to list folders", err)
		return
	}
	h.render(c, http.StatusOK, pageDashboard, pageData{
		DisplayName: capitalizeUsername(principal.Username),
		Folders:     owned,
	})
}

func (h *httpHandler) handleCreateFolder(c *gin.Context) {
	principal, _ := currentPrincipal(c)
	var form createFolderForm
	_ = c.ShouldBind(&form)

	_, err := h.folders.CreateFolder(c.Request.Context(), principal, form.Title)
	if err != nil && !errors.Is(err, folders.ErrBlankTitle) {
		h.fail(c, "failed to create folder", err)
		return
	}
	c.Redirect(http.StatusFound, "/dashboard")
}

func (h *httpHandler) handleShowFolder(c *gin.Context) {
	principal, _ := currentPrincipal(c)
	folder, err := h.folders.GetFolder(c.Request.Context(), principal, c.Param("folderId"))
	if errors.Is(err, folders.ErrNotFound) {
		h.renderNotFound(c)
		return
	}
	if err != nil {
		h.fail(c, "failed to load folder", err)
		return
	}
	h.render(c, http.StatusOK, pageTask, pageData{Title: folder.Title, Folder: folder})
}

func (h *httpHandler) handleDeleteFolder(c *gin.Context) {
	principal, _ := currentPrincipal(c)
	if err := h.folders.DeleteFolder(c.Request.Context(), principal, c.Param("folderId")); err != nil {
		h.fail(c, "failed to delete folder", err)
		return
	}
	c.Redirect(http.StatusFound, "/dashboard")
}

func (h *httpHandler) handleCreateTask(c *gin.Context) {
	principal, _ := currentPrincipal(c)
	folderID := c.Param("folderId")
	var form createTaskForm
	_ = c.ShouldBind(&form)

	_, err := h.folders.CreateTask(c.Request.Context(), principal, folderID, form.Name)
	if errors.Is(err, folders.ErrNotFound) {
		h.logger.Debug("task creation in unknown folder", zap.String("folder_id", folderID))
		h.renderNotFound(c)
		return
	}
	if err != nil {
		h.fail(c, "failed to create task", err)
		return
	}
	c.Redirect(http.StatusFound, "/tasks/"+folderID)
}

func (h *httpHandler) handleDeleteTask(c *gin.Context) {
	principal, _ := currentPrincipal(c)
	folderID := c.Param("folderId")

	err := h.folders.DeleteTask(c.Request.Context(), principal, folderID, c.Param("taskId"))
	if errors.Is(err, folders.ErrNotFound) {
		h.renderNotFound(c)
		return
	}
	if err != nil {
		h.fail(c, "failed to delete task", err)
		return
	}
	c.Redirect(http.StatusFound, "/tasks/"+folderID)
}
