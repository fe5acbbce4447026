package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"aurelienallenic/api/mailer"
	"aurelienallenic/api/models"
	"aurelienallenic/api/recaptcha"
	"aurelienallenic/api/store"
	"aurelienallenic/api/utils"
	"aurelienallenic/api/worker"
)

const archiveTaskName = "archive_message"

type ContactHandlers struct {
	Mailer    mailer.Sender
	Composer  mailer.Composer
	Recaptcha *recaptcha.Verifier
	Queue     *worker.Queue
	Encryptor *utils.Encryptor
	Messages  store.MessageRepository
	Log       *logrus.Logger
	now       func() time.Time
}

func NewContactHandlers(
	sender mailer.Sender,
	composer mailer.Composer,
	verifier *recaptcha.Verifier,
	queue *worker.Queue,
	enc *utils.Encryptor,
	messages store.MessageRepository,
	log *logrus.Logger,
) *ContactHandlers {
	return &ContactHandlers{
		Mailer:    sender,
		Composer:  composer,
		Recaptcha: verifier,
		Queue:     queue,
		Encryptor: enc,
		Messages:  messages,
		Log:       log,
		now:       time.Now,
	}
}

// HandleContact mails the site owner and the visitor, then archives the
// submission in the background whatever the mail outcome.
func (h *ContactHandlers) HandleContact(c *gin.Context) {
	var req models.ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Email et message sont requis"})
		return
	}
	email := strings.TrimSpace(req.Email)
	message := strings.TrimSpace(req.Message)
	if email == "" || message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Email et message sont requis"})
		return
	}
	if !utils.IsValidEmail(email) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Format d'email invalide"})
		return
	}

	if h.Recaptcha.Enabled() {
		if req.RecaptchaToken == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "Vérification de sécurité requise. Veuillez accepter les cookies et réessayer.",
			})
			return
		}
		result, err := h.Recaptcha.Verify(c.Request.Context(), req.RecaptchaToken)
		if err != nil || !result.OK {
			h.Log.WithError(err).WithFields(logrus.Fields{
				"reason": result.Reason,
				"score":  result.Score,
			}).Warn("HandleContact: reCAPTCHA rejected")
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "Échec de la vérification de sécurité. Veuillez réessayer.",
			})
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 20*time.Second)
	defer cancel()

	sendErr := h.send(ctx, email, message)
	h.archive(email, message, sendErr)

	if sendErr != nil {
		h.Log.WithError(sendErr).Error("HandleContact: failed to send emails")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Une erreur est survenue lors de l'envoi. Veuillez réessayer dans quelques instants.",
		})
		return
	}

	h.Log.Info("Contact emails sent")
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Votre message a été envoyé avec succès ! Nous vous répondrons rapidement.",
	})
}

func (h *ContactHandlers) send(ctx context.Context, email, message string) error {
	at := h.now()
	admin, err := h.Composer.AdminNotification(email, message, at)
	if err != nil {
		return err
	}
	if err := h.Mailer.Send(ctx, admin); err != nil {
		return err
	}
	confirmation, err := h.Composer.Confirmation(email, message, at)
	if err != nil {
		return err
	}
	return h.Mailer.Send(ctx, confirmation)
}

// archive enqueues the encrypted copy of the submission. A full queue only
// loses the archive, never the response.
func (h *ContactHandlers) archive(email, message string, sendErr error) {
	var stored *string
	if sendErr != nil {
		detail := sendErr.Error()
		var apiErr *mailer.APIError
		if errors.As(sendErr, &apiErr) {
			detail = apiErr.Body
		}
		stored = &detail
	}

	task := worker.Task{
		Name: archiveTaskName,
		Run: func(ctx context.Context) error {
			encEmail, err := h.Encryptor.Encrypt(email)
			if err != nil {
				return err
			}
			encBody, err := h.Encryptor.Encrypt(message)
			if err != nil {
				return err
			}
			msg := &models.Message{
				ID:    uuid.NewString(),
				Email: encEmail,
				Body:  encBody,
				Sent:  sendErr == nil,
				Error: stored,
			}
			if err := h.Messages.CreateMessage(ctx, msg); err != nil {
				return err
			}
			h.Log.WithFields(logrus.Fields{"message_id": msg.ID, "sent": msg.Sent}).Info("Contact message archived")
			return nil
		},
	}
	if err := h.Queue.Submit(task); err != nil {
		h.Log.WithError(err).Warn("HandleContact: archive task dropped")
	}
}
