package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"policychat-backend/llm"
	"policychat-backend/service"
	"policychat-backend/session"
)

const sessionCookie = "session_id"

// DocumentIndexer builds a retriever over a directory of staged documents.
type DocumentIndexer interface {
	Index(ctx context.Context, dir string) (service.ContextRetriever, error)
}

// ChatHandler handles HTTP requests for the chat flow: staging documents,
// answering questions, and clearing per-session state.
type ChatHandler struct {
	sessions     *session.Manager
	indexer      DocumentIndexer
	policy       service.ContextRetriever
	generator    llm.Generator
	maxFileSize  int64
	indexTimeout time.Duration
	queryTimeout time.Duration
}

// NewChatHandler creates a chat handler bound to the shared policy retriever.
func NewChatHandler(sessions *session.Manager, indexer DocumentIndexer, policy service.ContextRetriever, generator llm.Generator, indexTimeout, queryTimeout time.Duration) *ChatHandler {
	return &ChatHandler{
		sessions:     sessions,
		indexer:      indexer,
		policy:       policy,
		generator:    generator,
		maxFileSize:  10 * 1024 * 1024, // 10MB
		indexTimeout: indexTimeout,
		queryTimeout: queryTimeout,
	}
}

// sessionFor resolves the caller's session from the session cookie, minting a
// new ID when the cookie is absent.
func (h *ChatHandler) sessionFor(c *gin.Context) *session.Session {
	id, err := c.Cookie(sessionCookie)
	if err != nil || id == "" {
		id = uuid.NewString()
		c.SetCookie(sessionCookie, id, 0, "/", "", false, true)
	}
	return h.sessions.GetOrCreate(id)
}

// Upload handles POST /api/upload. Each part of the multipart "files"
// field is staged into the session's scratch store; unsupported extensions
// and duplicate names are reported as skipped rather than failing the
// request.
func (h *ChatHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_FORM", "Request must be multipart form data"))
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, errorBody("NO_FILES", "No files provided in 'files' field"))
		return
	}

	sess := h.sessionFor(c)
	sess.Lock()
	defer sess.Unlock()

	store, err := sess.EnsureScratch()
	if err != nil {
		log.Error("failed to create scratch store", "session_id", sess.ID, "error", err)
		c.JSON(http.StatusInternalServerError, errorBody("STAGING_FAILED", "Failed to prepare session storage"))
		return
	}

	staged := []string{}
	skipped := []gin.H{}
	skip := func(name, reason string) {
		skipped = append(skipped, gin.H{"name": name, "reason": reason})
	}
	// A mid-batch failure still reports what was staged before it, so the
	// caller's view of session state stays accurate without a follow-up GET.
	fail := func(message string) {
		c.JSON(http.StatusInternalServerError, stagingFailedBody(message, staged, store.Names()))
	}
	for _, fh := range files {
		if fh.Size > h.maxFileSize {
			skip(fh.Filename, "exceeds size limit")
			continue
		}
		if !store.Allowed(fh.Filename) {
			skip(fh.Filename, "unsupported extension")
			continue
		}
		if store.Has(fh.Filename) {
			skip(fh.Filename, "already staged")
			continue
		}
		src, err := fh.Open()
		if err != nil {
			log.Error("failed to open uploaded file", "filename", fh.Filename, "error", err)
			fail("Failed to read uploaded file")
			return
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			fail("Failed to read uploaded file")
			return
		}

		ok, err := store.Stage(fh.Filename, data)
		if err != nil {
			log.Error("failed to stage file", "session_id", sess.ID, "filename", fh.Filename, "error", err)
			fail("Failed to stage uploaded file")
			return
		}
		if ok {
			staged = append(staged, fh.Filename)
		} else {
			skip(fh.Filename, "not stageable")
		}
	}

	log.Info("staged uploads", "session_id", sess.ID, "staged", len(staged), "skipped", len(skipped))
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"staged":  staged,
			"skipped": skipped,
			"files":   store.Names(),
		},
	})
}

type queryRequest struct {
	Question string `json:"question" binding:"required"`
}

// Query handles POST /api/query. If the session has staged documents,
// they are indexed into an ephemeral retriever for this query; the prompt
// then draws on the policy index and, when present, the document index.
func (h *ChatHandler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST", "Field 'question' is required"))
		return
	}

	sess := h.sessionFor(c)
	sess.Lock()
	defer sess.Unlock()

	var documents service.ContextRetriever
	if store := sess.Scratch(); store != nil && store.Count() > 0 {
		indexCtx, cancel := context.WithTimeout(c.Request.Context(), h.indexTimeout)
		retriever, err := h.indexer.Index(indexCtx, store.Dir())
		cancel()
		switch {
		case errors.Is(err, service.ErrNoDocuments):
			// Nothing loadable was staged; drop the storage so the session
			// starts clean instead of re-failing on every query.
			if cleanupErr := sess.ClearStorage(); cleanupErr != nil {
				log.Warn("cleanup after empty corpus failed", "session_id", sess.ID, "error", cleanupErr)
			}
			c.JSON(http.StatusUnprocessableEntity, errorBody("NO_DOCUMENTS", "None of the staged files contained readable text"))
			return
		case err != nil:
			// Staged files stay put so the caller can retry once the
			// backend recovers.
			log.Error("document indexing failed", "session_id", sess.ID, "error", err)
			c.JSON(http.StatusBadGateway, errorBody("INDEXING_FAILED", "Failed to index staged documents"))
			return
		}
		documents = retriever
	}

	composer := service.NewComposer(h.generator, h.policy, documents)
	queryCtx, cancel := context.WithTimeout(c.Request.Context(), h.queryTimeout)
	defer cancel()

	answer, err := composer.Answer(queryCtx, req.Question)
	if err != nil {
		log.Error("query failed", "session_id", sess.ID, "error", err)
		if errors.Is(err, service.ErrRetrievalFailed) {
			c.JSON(http.StatusBadGateway, errorBody("RETRIEVAL_FAILED", "Failed to retrieve context for the question"))
		} else {
			c.JSON(http.StatusBadGateway, errorBody("GENERATION_FAILED", "Failed to generate an answer"))
		}
		return
	}

	sess.AppendExchange(req.Question, answer)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"answer":  answer,
			"history": sess.History(),
		},
	})
}

// ClearHistory handles POST /api/clear-history.
func (h *ChatHandler) ClearHistory(c *gin.Context) {
	sess := h.sessionFor(c)
	sess.Lock()
	defer sess.Unlock()

	sess.ClearHistory()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"message": "History cleared"},
	})
}

// ClearStorage handles POST /api/clear-storage. Staged documents are
// always detached from the session; a failed artifact cleanup is reported but
// does not fail the request.
func (h *ChatHandler) ClearStorage(c *gin.Context) {
	sess := h.sessionFor(c)
	sess.Lock()
	defer sess.Unlock()

	data := gin.H{"message": "Storage cleared"}
	if err := sess.ClearStorage(); err != nil {
		log.Warn("storage cleanup left artifacts behind", "session_id", sess.ID, "error", err)
		data["warning"] = "Some staged artifacts could not be removed"
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

// GetSession handles GET /api/session: the staged file names and the
// conversation so far.
func (h *ChatHandler) GetSession(c *gin.Context) {
	sess := h.sessionFor(c)
	sess.Lock()
	defer sess.Unlock()

	files := []string{}
	if store := sess.Scratch(); store != nil {
		files = store.Names()
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"session_id": sess.ID,
			"files":      files,
			"history":    sess.History(),
		},
	})
}

// stagingFailedBody is the error envelope for an upload batch that failed
// partway: it carries the files staged by this request and the session's full
// file list so the caller knows exactly what landed.
func stagingFailedBody(message string, staged, files []string) gin.H {
	return gin.H{
		"success": false,
		"error": gin.H{
			"code":    "STAGING_FAILED",
			"message": message,
		},
		"data": gin.H{
			"staged": staged,
			"files":  files,
		},
	}
}

func errorBody(code, message string) gin.H {
	return gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
