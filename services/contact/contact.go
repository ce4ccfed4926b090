package contact

import (
	"context"
	"strings"
	"time"

	"fireplay/errs"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog/log"
)

const collection = "messages"

type Message struct {
	ID        string    `json:"id,omitempty" firestore:"-"`
	Name      string    `json:"name" firestore:"name" validate:"required"`
	Email     string    `json:"email" firestore:"email" validate:"required,email"`
	Subject   string    `json:"subject" firestore:"subject" validate:"required"`
	Message   string    `json:"message" firestore:"message" validate:"required,min=10"`
	UserID    *string   `json:"userId" firestore:"userId"`
	CreatedAt time.Time `json:"createdAt" firestore:"createdAt"`
}

// Writer stores a message under a generated id and returns that id.
type Writer interface {
	Create(ctx context.Context, msg Message) (string, error)
}

type Service interface {
	// Send validates msg before any network call. userID is attached when the
	// sender has a session.
	Send(ctx context.Context, msg Message, userID string) (*Message, error)
}

type service struct {
	writer Writer
	now    func() time.Time
}

var _ Service = (*service)(nil)

func NewService(writer Writer) Service {
	return &service{writer: writer, now: time.Now}
}

func (s *service) Send(ctx context.Context, msg Message, userID string) (*Message, error) {
	msg.Name = strings.TrimSpace(msg.Name)
	msg.Email = strings.TrimSpace(msg.Email)
	msg.Subject = strings.TrimSpace(msg.Subject)
	msg.Message = strings.TrimSpace(msg.Message)
	if err := errs.Struct(msg); err != nil {
		return nil, err
	}

	msg.UserID = nil
	if userID != "" {
		msg.UserID = &userID
	}
	msg.CreatedAt = s.now()

	id, err := s.writer.Create(ctx, msg)
	if err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("failed to store contact message")
		return nil, errs.Remote("send contact message", err)
	}
	msg.ID = id
	return &msg, nil
}

var _ Writer = (*firestoreWriter)(nil)

type firestoreWriter struct {
	db *firestore.Client
}

func NewFirestoreWriter(db *firestore.Client) Writer {
	return &firestoreWriter{db: db}
}

func (w *firestoreWriter) Create(ctx context.Context, msg Message) (string, error) {
	ref := w.db.Collection(collection).NewDoc()
	if _, err := ref.Create(ctx, msg); err != nil {
		return "", err
	}
	return ref.ID, nil
}
