// Package bot turns chat messages into engine calls: template selection,
// the question-and-answer loop and delivery of the finished document.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/kayz/scribe/internal/engine"
	"github.com/kayz/scribe/internal/profile"
	"github.com/kayz/scribe/internal/router"
	"github.com/kayz/scribe/internal/session"
	"github.com/kayz/scribe/internal/templates"
)

// TemplateSource lists and loads templates.
type TemplateSource interface {
	List() ([]templates.Node, error)
	Load(path string) (*templates.Template, error)
}

// DocumentSink records finished documents.
type DocumentSink interface {
	SaveDocument(ctx context.Context, doc profile.Document) error
	ListDocuments(ctx context.Context, userID string, limit int) ([]profile.Document, error)
}

const recentDocuments = 5

// Config wires a Handler.
type Config struct {
	Engine    *engine.Engine
	Templates TemplateSource
	Documents DocumentSink
	// Allow, when set, filters users by platform and user ID.
	Allow func(platform, userID string) bool
	// Unavailable, when set, disables template selection with this reason.
	// It is used when the base schema failed to load.
	Unavailable string
}

// Handler answers chat messages.
type Handler struct {
	engine      *engine.Engine
	templates   TemplateSource
	documents   DocumentSink
	allow       func(platform, userID string) bool
	unavailable string
}

const helpText = `I help you fill in documents by asking questions.

/start or /templates - choose a document
/status - show the current question
/documents - list your recent documents
/cancel - stop and discard answers
/help - this message`

// New creates a Handler.
func New(cfg Config) *Handler {
	return &Handler{
		engine:      cfg.Engine,
		templates:   cfg.Templates,
		documents:   cfg.Documents,
		allow:       cfg.Allow,
		unavailable: cfg.Unavailable,
	}
}

// HandleMessage answers one message. It matches router.HandlerFunc.
func (h *Handler) HandleMessage(ctx context.Context, msg router.Message) (router.Response, error) {
	text := strings.TrimSpace(msg.Text)
	key := msg.SessionKey()

	if h.allow != nil && !h.allow(msg.Platform, msg.UserID) {
		log.Printf("[Bot] rejected message from %s:%s", msg.Platform, msg.UserID)
		return router.Response{Text: "Sorry, you are not allowed to use this bot."}, nil
	}

	if strings.HasPrefix(text, "/") {
		return h.handleCommand(ctx, msg, key, text)
	}

	st, err := h.engine.GetState(ctx, key)
	if errors.Is(err, engine.ErrSessionNotFound) {
		resp, err := h.offerTemplates(ctx, msg, key)
		if err != nil {
			return resp, err
		}
		if text != "" {
			resp.Text = "There is no active session, it may have expired. Let's start again.\n\n" + resp.Text
		}
		return resp, nil
	}
	if err != nil {
		return router.Response{}, err
	}

	switch st.Status {
	case session.StatusSelectingTemplate:
		return h.selectTemplate(ctx, msg, key, text)
	case session.StatusCollectingData:
		return h.answer(ctx, msg, key, st, text)
	default:
		log.Printf("[Bot] session %s in status %s, restarting", key, st.Status)
		return h.offerTemplates(ctx, msg, key)
	}
}

func (h *Handler) handleCommand(ctx context.Context, msg router.Message, key, text string) (router.Response, error) {
	cmd := strings.Fields(text)[0]
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}

	switch strings.ToLower(cmd) {
	case "/start", "/templates":
		return h.offerTemplates(ctx, msg, key)
	case "/cancel":
		if err := h.engine.DeleteState(ctx, key); err != nil {
			return router.Response{}, err
		}
		return router.Response{Text: "Cancelled. Send /start to begin again."}, nil
	case "/status":
		turn, err := h.engine.CurrentTurn(ctx, key)
		if errors.Is(err, engine.ErrSessionNotFound) {
			return router.Response{Text: "No active session. Send /start to choose a document."}, nil
		}
		if err != nil {
			return router.Response{}, err
		}
		if turn.Question == nil {
			return router.Response{Text: fmt.Sprintf("Session status: %s.", turn.Status)}, nil
		}
		resp := questionResponse(turn.Question)
		resp.Text = fmt.Sprintf("Session status: %s.\n\n%s", turn.Status, resp.Text)
		return resp, nil
	case "/documents":
		return h.listDocuments(ctx, msg)
	default:
		return router.Response{Text: helpText}, nil
	}
}

// offerTemplates lists templates and moves the session to selection.
func (h *Handler) offerTemplates(ctx context.Context, msg router.Message, key string) (router.Response, error) {
	if h.unavailable != "" || h.templates == nil {
		return router.Response{Text: "Document templates are not available right now. Please try again later."}, nil
	}
	files, err := h.listFiles()
	if err != nil {
		log.Printf("[Bot] failed to list templates: %v", err)
		return router.Response{Text: "Document templates are not available right now. Please try again later."}, nil
	}
	if len(files) == 0 {
		return router.Response{Text: "No document templates are installed yet."}, nil
	}
	if err := h.engine.BeginSelection(ctx, key, msg.ProfileID()); err != nil {
		return router.Response{}, err
	}
	return templateMenu("Which document would you like to prepare?", files), nil
}

func (h *Handler) selectTemplate(ctx context.Context, msg router.Message, key, text string) (router.Response, error) {
	files, err := h.listFiles()
	if err != nil || h.unavailable != "" {
		return router.Response{Text: "Document templates are not available right now. Please try again later."}, nil
	}
	choice, ok := matchTemplate(files, text)
	if !ok {
		return templateMenu("Please choose a template by number or name.", files), nil
	}

	tpl, err := h.templates.Load(choice.Path)
	var missing *templates.MissingTemplateError
	if errors.As(err, &missing) {
		log.Printf("[Bot] template %s unavailable: %v", choice.Path, err)
		return templateMenu("That template is not available. Please choose another template.", files), nil
	}
	if err != nil {
		return router.Response{}, err
	}

	turn, err := h.engine.StartSession(ctx, key, engine.StartRequest{
		UserID:       msg.ProfileID(),
		TemplatePath: tpl.Path,
		TemplateText: tpl.Text,
		RequiredKeys: tpl.RequiredKeys,
		Override:     tpl.Override,
	})
	if err != nil {
		return router.Response{}, err
	}
	log.Printf("[Bot] %s started %s", key, tpl.Path)
	return h.turnResponse(ctx, msg, tpl.Path, turn), nil
}

func (h *Handler) answer(ctx context.Context, msg router.Message, key string, st *session.State, text string) (router.Response, error) {
	if st.CurrentQuestionKey != "" {
		text = pickOption(engine.BuildQuestion(st.CurrentQuestionKey, st.Schema), text)
	}
	turn, err := h.engine.SubmitAnswer(ctx, key, text)
	if errors.Is(err, engine.ErrSessionNotFound) {
		resp, err := h.offerTemplates(ctx, msg, key)
		resp.Text = "Your previous session has expired. Let's start again.\n\n" + resp.Text
		return resp, err
	}
	if err != nil {
		return router.Response{}, err
	}
	return h.turnResponse(ctx, msg, st.TemplatePath, turn), nil
}

func (h *Handler) listDocuments(ctx context.Context, msg router.Message) (router.Response, error) {
	if h.documents == nil {
		return router.Response{Text: "Documents are not being kept."}, nil
	}
	docs, err := h.documents.ListDocuments(ctx, msg.ProfileID(), recentDocuments)
	if err != nil {
		return router.Response{}, fmt.Errorf("failed to list documents: %w", err)
	}
	if len(docs) == 0 {
		return router.Response{Text: "You have no documents yet. Send /start to create one."}, nil
	}
	var b strings.Builder
	b.WriteString("Your recent documents:")
	for i, d := range docs {
		fmt.Fprintf(&b, "\n%d. %s (%s)", i+1, d.TemplatePath, d.CreatedAt.Format("2006-01-02 15:04"))
	}
	// The newest document is resent so it can be copied again.
	return router.Response{Text: b.String(), Document: docs[0].Content}, nil
}

func (h *Handler) turnResponse(ctx context.Context, msg router.Message, templatePath string, turn engine.Turn) router.Response {
	if turn.Done {
		if h.documents != nil {
			err := h.documents.SaveDocument(ctx, profile.Document{
				UserID:       msg.ProfileID(),
				TemplatePath: templatePath,
				Content:      turn.Document,
			})
			if err != nil {
				log.Printf("[Bot] failed to save document for %s: %v", msg.ProfileID(), err)
			}
		}
		return router.Response{
			Text:     "Your document is ready.",
			Document: turn.Document,
		}
	}
	if turn.Question == nil {
		return router.Response{Text: helpText}
	}
	resp := questionResponse(turn.Question)
	if turn.Rejection != "" {
		resp.Text = turn.Rejection + "\n\n" + resp.Text
	}
	return resp
}

func questionResponse(q *engine.Question) router.Response {
	text := q.Prompt
	if q.Hint.Optional {
		text += " (send " + engine.SkipToken + " to skip)"
	}
	return router.Response{Text: text, Options: q.Hint.Options}
}

// pickOption maps a numbered reply onto a choice question's option, for
// transports that show options as a numbered list.
func pickOption(q *engine.Question, text string) string {
	if q == nil || q.Hint.Kind != engine.InputChoice {
		return text
	}
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 1 || n > len(q.Hint.Options) {
		return text
	}
	return q.Hint.Options[n-1]
}

func (h *Handler) listFiles() ([]templates.Node, error) {
	if h.templates == nil {
		return nil, errors.New("no template source")
	}
	nodes, err := h.templates.List()
	if err != nil {
		return nil, err
	}
	return templates.Files(nodes), nil
}

func templateMenu(title string, files []templates.Node) router.Response {
	var b strings.Builder
	b.WriteString(title)
	options := make([]string, 0, len(files))
	for i, f := range files {
		fmt.Fprintf(&b, "\n%d. %s", i+1, f.Label())
		options = append(options, f.Label())
	}
	return router.Response{Text: b.String(), Options: options}
}

// matchTemplate picks a template by 1-based number, label, name or path.
func matchTemplate(files []templates.Node, text string) (templates.Node, bool) {
	text = strings.TrimSpace(text)
	if n, err := strconv.Atoi(text); err == nil {
		if n >= 1 && n <= len(files) {
			return files[n-1], true
		}
		return templates.Node{}, false
	}
	for _, f := range files {
		if strings.EqualFold(text, f.Label()) || strings.EqualFold(text, f.Name) || strings.EqualFold(text, f.Path) {
			return f, true
		}
	}
	return templates.Node{}, false
}
