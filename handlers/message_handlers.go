package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"aurelienallenic/api/models"
	"aurelienallenic/api/store"
	"aurelienallenic/api/utils"
)

type MessageHandlers struct {
	Messages  store.MessageRepository
	Encryptor *utils.Encryptor
	Log       *logrus.Logger
}

func NewMessageHandlers(messages store.MessageRepository, enc *utils.Encryptor, log *logrus.Logger) *MessageHandlers {
	return &MessageHandlers{Messages: messages, Encryptor: enc, Log: log}
}

func (h *MessageHandlers) List(c *gin.Context) {
	msgs, err := h.Messages.ListMessages(c.Request.Context())
	if err != nil {
		h.Log.WithError(err).Error("ListMessages: query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve messages"})
		return
	}
	out := make([]models.Message, len(msgs))
	for i := range msgs {
		out[i] = h.decrypt(msgs[i])
	}
	c.JSON(http.StatusOK, gin.H{"message": "Messages retrieved", "data": out})
}

func (h *MessageHandlers) Get(c *gin.Context) {
	id, ok := messageID(c)
	if !ok {
		return
	}
	msg, err := h.Messages.GetMessage(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
			return
		}
		h.Log.WithError(err).WithField("message_id", id).Error("GetMessage: query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve message"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Message retrieved", "data": h.decrypt(*msg)})
}

func (h *MessageHandlers) Delete(c *gin.Context) {
	id, ok := messageID(c)
	if !ok {
		return
	}
	if err := h.Messages.DeleteMessage(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
			return
		}
		h.Log.WithError(err).WithField("message_id", id).Error("DeleteMessage: query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete message"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Message deleted"})
}

func messageID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message id"})
		return "", false
	}
	return id, true
}

// decrypt falls back to the stored value for records that were never
// encrypted or were written with another key.
func (h *MessageHandlers) decrypt(msg models.Message) models.Message {
	if v, err := h.Encryptor.Decrypt(msg.Email); err == nil {
		msg.Email = v
	} else {
		h.Log.WithError(err).WithField("message_id", msg.ID).Warn("message email could not be decrypted")
	}
	if v, err := h.Encryptor.Decrypt(msg.Body); err == nil {
		msg.Body = v
	} else {
		h.Log.WithError(err).WithField("message_id", msg.ID).Warn("message body could not be decrypted")
	}
	return msg
}
