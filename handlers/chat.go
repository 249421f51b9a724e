package handlers

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"unmute/models"
	"unmute/services/session"
	"unmute/services/speech"
	"unmute/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const streamKeepAlive = 25 * time.Second

// ChatHandler exposes the transcript synchronizer over HTTP.
type ChatHandler struct {
	manager     *session.Manager
	transcriber *speech.Transcriber
	logger      *zap.Logger
}

// NewChatHandler builds a ChatHandler. transcriber may be nil when voice
// input is disabled.
func NewChatHandler(manager *session.Manager, transcriber *speech.Transcriber, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{manager: manager, transcriber: transcriber, logger: logger}
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type transcriptResponse struct {
	Messages []models.Message `json:"messages"`
}

type sendMessageResponse struct {
	Message  models.Message   `json:"message"`
	Messages []models.Message `json:"messages"`
}

// GetTranscript handles GET /api/chat/transcript.
func (h *ChatHandler) GetTranscript(c *gin.Context) {
	sess, ok := openSession(c, h.manager, h.logger)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, transcriptResponse{Messages: sess.Chat.Transcript()})
}

// SendMessage handles POST /api/chat/messages. The reply arrives later via
// the transcript stream.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSONError(c, h.logger, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	sess, ok := openSession(c, h.manager, h.logger)
	if !ok {
		return
	}
	h.append(c, sess, req.Text)
}

// SendVoice handles POST /api/chat/voice with a multipart "audio" WAV file.
func (h *ChatHandler) SendVoice(c *gin.Context) {
	if h.transcriber == nil {
		utils.JSONError(c, h.logger, http.StatusNotImplemented, "Voice input is disabled", "")
		return
	}

	file, header, err := c.Request.FormFile("audio")
	if err != nil {
		utils.JSONError(c, h.logger, http.StatusBadRequest, "audio file is required", err.Error())
		return
	}
	defer file.Close()

	if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != speech.AllowedExtension {
		utils.JSONError(c, h.logger, http.StatusBadRequest, "invalid file type", "expected "+speech.AllowedExtension+", got "+ext)
		return
	}
	audio, err := io.ReadAll(io.LimitReader(file, speech.MaxFileSize+1))
	if err != nil {
		utils.JSONError(c, h.logger, http.StatusBadRequest, "failed to read audio file", err.Error())
		return
	}

	sess, ok := openSession(c, h.manager, h.logger)
	if !ok {
		return
	}

	text, err := h.transcriber.Transcribe(c.Request.Context(), audio, c.DefaultPostForm("language", speech.DefaultLanguage))
	switch {
	case errors.Is(err, speech.ErrAudioTooLarge), errors.Is(err, speech.ErrAudioTooLong):
		utils.JSONError(c, h.logger, http.StatusRequestEntityTooLarge, "Recording is too long", err.Error())
		return
	case errors.Is(err, speech.ErrInvalidAudio):
		utils.JSONError(c, h.logger, http.StatusBadRequest, "Unsupported recording", err.Error())
		return
	case err != nil:
		h.logger.Error("speech recognition failed", zap.Error(err))
		utils.JSONError(c, h.logger, http.StatusBadGateway, "Could not transcribe recording", err.Error())
		return
	}
	if strings.TrimSpace(text) == "" {
		utils.JSONError(c, h.logger, http.StatusUnprocessableEntity, "No speech was recognized", "")
		return
	}
	h.append(c, sess, text)
}

func (h *ChatHandler) append(c *gin.Context, sess *session.Session, text string) {
	msg, err := sess.Chat.AppendUserMessage(text)
	if errors.Is(err, session.ErrBlankMessage) {
		utils.JSONError(c, h.logger, http.StatusBadRequest, "Message text is required", "")
		return
	}
	if err != nil {
		utils.JSONError(c, h.logger, http.StatusInternalServerError, "Failed to send message", err.Error())
		return
	}
	c.JSON(http.StatusAccepted, sendMessageResponse{Message: msg, Messages: sess.Chat.Transcript()})
}

// Stream handles GET /api/chat/stream: a server-sent "transcript" event with
// the full transcript on connect and after every change.
func (h *ChatHandler) Stream(c *gin.Context) {
	sess, ok := openSession(c, h.manager, h.logger)
	if !ok {
		return
	}

	updates := make(chan []models.Message, 1)
	stop := sess.Chat.Listen(func(messages []models.Message) {
		// Keep only the newest transcript for a slow reader.
		for {
			select {
			case updates <- messages:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer stop()

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("transcript", transcriptResponse{Messages: sess.Chat.Transcript()})
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case messages := <-updates:
			c.SSEvent("transcript", transcriptResponse{Messages: messages})
			return true
		case <-keepAlive.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		}
	})
}
