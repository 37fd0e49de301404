package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/memtensor/memchat/pkg/chat"
)

// createConversation handles POST /api/chat/conversations. An existing direct
// conversation is answered with 200, a new one with 201.
func (s *Server) createConversation(c *gin.Context) {
	var req chat.CreateConversationInput
	if err := c.ShouldBindJSON(&req); err != nil {
		s.handleError(c, invalidRequest(err))
		return
	}

	conversation, created, err := s.chat.CreateConversation(c.Request.Context(), currentUser(c).Identity(), req)
	if err != nil {
		s.handleError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, conversation)
}

// listConversations handles GET /api/chat/conversations
func (s *Server) listConversations(c *gin.Context) {
	conversations, err := s.chat.ListUserConversations(c.Request.Context(), currentUser(c).Identity())
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, conversations)
}

// listAllConversations handles GET /api/chat/conversations/all
func (s *Server) listAllConversations(c *gin.Context) {
	conversations, err := s.chat.ListAllConversations(c.Request.Context(), currentUser(c).Identity())
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, conversations)
}

// addParticipant handles POST /api/chat/conversations/:conversationId/participants
func (s *Server) addParticipant(c *gin.Context) {
	var req AddParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.handleError(c, invalidRequest(err))
		return
	}

	conversation, err := s.chat.AddParticipant(c.Request.Context(), currentUser(c).Identity(), c.Param("conversationId"), req.ParticipantID)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// removeParticipant handles DELETE /api/chat/conversations/:conversationId/participants/:participantId
func (s *Server) removeParticipant(c *gin.Context) {
	conversation, err := s.chat.RemoveParticipant(c.Request.Context(), currentUser(c).Identity(), c.Param("conversationId"), c.Param("participantId"))
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// sendMessage handles POST /api/chat/messages
func (s *Server) sendMessage(c *gin.Context) {
	var req chat.SendMessageInput
	if err := c.ShouldBindJSON(&req); err != nil {
		s.handleError(c, invalidRequest(err))
		return
	}

	message, err := s.chat.SendMessage(c.Request.Context(), currentUser(c).Identity(), req)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, message)
}

// listMessages handles GET /api/chat/messages/:conversationId?page=&limit=
func (s *Server) listMessages(c *gin.Context) {
	page, err := s.chat.ListMessages(c.Request.Context(), currentUser(c).Identity(),
		c.Param("conversationId"), parseIntQuery(c, "page"), parseIntQuery(c, "limit"))
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// editMessage handles PUT /api/chat/messages/:messageId
func (s *Server) editMessage(c *gin.Context) {
	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.handleError(c, invalidRequest(err))
		return
	}

	message, err := s.chat.EditMessage(c.Request.Context(), currentUser(c).Identity(), c.Param("messageId"), req.Content)
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, message)
}

// deleteMessage handles DELETE /api/chat/messages/:messageId
func (s *Server) deleteMessage(c *gin.Context) {
	result, err := s.chat.DeleteMessage(c.Request.Context(), currentUser(c).Identity(), c.Param("messageId"))
	if err != nil {
		s.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
