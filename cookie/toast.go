package cookie

import (
	"net/http"

	"github.com/google/uuid"
)

// ToastCookieName is the cookie that carries one-shot notices.
const ToastCookieName = "__toast"

const toastKey = "flash-toast"

// ToastType classifies a notice for rendering.
type ToastType string

const (
	ToastMessage ToastType = "message"
	ToastSuccess ToastType = "success"
	ToastError   ToastType = "error"
	ToastWarning ToastType = "warning"
	ToastInfo    ToastType = "info"
)

// Toast is a one-shot notice shown after a redirect.
type Toast struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Type        ToastType `json:"type"`
}

// Toasts flashes notices through a dedicated cookie.
type Toasts struct {
	storage *Storage
}

// NewToasts wraps a Storage configured for the toast cookie.
func NewToasts(storage *Storage) *Toasts {
	return &Toasts{storage: storage}
}

// Header returns a Set-Cookie value that flashes t. Missing ID and Type
// are defaulted.
func (ts *Toasts) Header(t Toast) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Type == "" {
		t.Type = ToastMessage
	}
	sess := newSession()
	if err := sess.Flash(toastKey, t); err != nil {
		return "", err
	}
	return ts.storage.Commit(sess)
}

// Read returns the pending toast on r and a Set-Cookie value that clears
// it. Both are zero when no toast is pending.
func (ts *Toasts) Read(r *http.Request) (*Toast, string) {
	sess := ts.storage.FromRequest(r)
	var t Toast
	ok, err := sess.Get(toastKey, &t)
	if !ok || err != nil || t.Title == "" {
		return nil, ""
	}
	return &t, ts.storage.Destroy()
}
