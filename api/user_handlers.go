package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/memtensor/memchat/pkg/users"
)

// login handles POST /api/auth/login
func (s *Server) login(c *gin.Context) {
	var req users.LoginInput
	if err := c.ShouldBindJSON(&req); err != nil {
		s.handleError(c, invalidRequest(err))
		return
	}

	resp, err := s.users.Login(c.Request.Context(), req)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// register handles POST /api/auth/register with a JSON or multipart body
func (s *Server) register(c *gin.Context) {
	var req users.RegisterInput
	if err := c.ShouldBind(&req); err != nil {
		s.handleError(c, invalidRequest(err))
		return
	}

	image, closeImage, err := readImage(c)
	if err != nil {
		s.handleError(c, err)
		return
	}
	defer closeImage()

	resp, err := s.users.Register(c.Request.Context(), req, image)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// me handles GET /api/auth/me
func (s *Server) me(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

// addUser handles POST /api/superadmin/addUser
func (s *Server) addUser(c *gin.Context) {
	var req users.RegisterInput
	if err := c.ShouldBind(&req); err != nil {
		s.handleError(c, invalidRequest(err))
		return
	}

	image, closeImage, err := readImage(c)
	if err != nil {
		s.handleError(c, err)
		return
	}
	defer closeImage()

	user, err := s.users.AddUser(c.Request.Context(), currentUser(c).Identity(), req, image)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, AddUserResponse{Message: "User added successfully", User: user})
}

// listUsers handles GET /api/users
func (s *Server) listUsers(c *gin.Context) {
	list, err := s.users.ListUsers(c.Request.Context())
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

// getUser handles GET /api/users/:id
func (s *Server) getUser(c *gin.Context) {
	user, err := s.users.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// updateUser handles PUT /api/users/:id and PUT /api/auth/update/:id
func (s *Server) updateUser(c *gin.Context) {
	patch, err := bindUpdateInput(c)
	if err != nil {
		s.handleError(c, err)
		return
	}

	image, closeImage, err := readImage(c)
	if err != nil {
		s.handleError(c, err)
		return
	}
	defer closeImage()

	user, err := s.users.UpdateUser(c.Request.Context(), currentUser(c).Identity(), c.Param("id"), patch, image)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// deleteUser handles DELETE /api/users/:id
func (s *Server) deleteUser(c *gin.Context) {
	if err := s.users.DeleteUser(c.Request.Context(), currentUser(c).Identity(), c.Param("id")); err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "User deleted successfully"})
}

// listAuditLogs handles GET /api/users/:id/audit
func (s *Server) listAuditLogs(c *gin.Context) {
	logs, err := s.users.AuditLogs(c.Request.Context(), c.Param("id"), parseIntQuery(c, "limit"))
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, logs)
}
