package firestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/brandlab/internal/domain"
)

type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store for the given project (BRANDLAB_GCP_PROJECT).
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) sessionsCol() *firestore.CollectionRef {
	return s.client.Collection("explorations")
}

func (s *Store) sessionDoc(id domain.SessionID) *firestore.DocumentRef {
	return s.sessionsCol().Doc(string(id))
}

func (s *Store) messagesCol(sessionID domain.SessionID) *firestore.CollectionRef {
	return s.sessionDoc(sessionID).Collection("messages")
}

// messageDoc keys messages by zero-padded order index, so the document id
// itself enforces one message per index.
func (s *Store) messageDoc(sessionID domain.SessionID, orderIndex int) *firestore.DocumentRef {
	return s.messagesCol(sessionID).Doc(fmt.Sprintf("%06d", orderIndex))
}

func itemKey(ref domain.ItemRef) string {
	return fmt.Sprintf("%s__%s__%s", ref.Kind, ref.ScopeID, ref.ID)
}

func (s *Store) itemDoc(ref domain.ItemRef) *firestore.DocumentRef {
	return s.client.Collection("items").Doc(itemKey(ref))
}

func (s *Store) methodsCol(ref domain.ItemRef) *firestore.CollectionRef {
	return s.itemDoc(ref).Collection("research_methods")
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type sessionDoc struct {
	ItemKind              string         `firestore:"item_kind"`
	ItemID                string         `firestore:"item_id"`
	ScopeID               string         `firestore:"scope_id"`
	Backend               string         `firestore:"backend"`
	ModelID               string         `firestore:"model_id"`
	Dimensions            []dimensionDoc `firestore:"dimensions"`
	Status                string         `firestore:"status"`
	AnsweredQuestions     int            `firestore:"answered_questions"`
	TotalQuestions        int            `firestore:"total_questions"`
	CurrentDimensionIndex int            `firestore:"current_dimension_index"`
	Progress              int            `firestore:"progress"`
	Locked                bool           `firestore:"locked"`
	ReportJSON            string         `firestore:"report_json"`
	LastError             string         `firestore:"last_error"`
	CreatedAt             time.Time      `firestore:"created_at"`
	UpdatedAt             time.Time      `firestore:"updated_at"`
}

type dimensionDoc struct {
	Key      string `firestore:"key"`
	Title    string `firestore:"title"`
	Icon     string `firestore:"icon,omitempty"`
	Question string `firestore:"question"`
}

type messageDoc struct {
	ID           string    `firestore:"id"`
	Type         string    `firestore:"type"`
	Content      string    `firestore:"content"`
	OrderIndex   int       `firestore:"order_index"`
	DimensionKey string    `firestore:"dimension_key,omitempty"`
	Bonus        bool      `firestore:"bonus,omitempty"`
	Fallback     bool      `firestore:"fallback,omitempty"`
	HasMetadata  bool      `firestore:"has_metadata"`
	CreatedAt    time.Time `firestore:"created_at"`
}

type itemDoc struct {
	Kind               string         `firestore:"kind"`
	ID                 string         `firestore:"id"`
	ScopeID            string         `firestore:"scope_id"`
	Name               string         `firestore:"name"`
	Fields             map[string]any `firestore:"fields"`
	ValidationCoverage int            `firestore:"validation_coverage"`
	UpdatedAt          time.Time      `firestore:"updated_at"`
}

type methodDoc struct {
	Method         string     `firestore:"method"`
	Status         string     `firestore:"status"`
	Progress       int        `firestore:"progress"`
	CompletedAt    *time.Time `firestore:"completed_at"`
	ArtifactsCount int        `firestore:"artifacts_count"`
}

func toSessionDoc(session *domain.ExplorationSession) (sessionDoc, error) {
	doc := sessionDoc{
		ItemKind:              string(session.ItemType),
		ItemID:                string(session.ItemID),
		ScopeID:               string(session.ScopeID),
		Backend:               string(session.Backend),
		ModelID:               session.ModelID,
		Status:                string(session.Status),
		AnsweredQuestions:     session.AnsweredQuestions,
		TotalQuestions:        session.TotalQuestions,
		CurrentDimensionIndex: session.CurrentDimensionIndex,
		Progress:              session.Progress,
		Locked:                session.Locked,
		LastError:             session.LastError,
		CreatedAt:             session.CreatedAt,
		UpdatedAt:             session.UpdatedAt,
	}
	for _, d := range session.Dimensions {
		doc.Dimensions = append(doc.Dimensions, dimensionDoc(d))
	}
	if session.Report != nil {
		b, err := json.Marshal(session.Report)
		if err != nil {
			return doc, fmt.Errorf("encode report: %w", err)
		}
		doc.ReportJSON = string(b)
	}
	return doc, nil
}

func fromSessionDoc(id string, doc sessionDoc) (*domain.ExplorationSession, error) {
	s := &domain.ExplorationSession{
		ID:                    domain.SessionID(id),
		ItemID:                domain.ItemID(doc.ItemID),
		ItemType:              domain.ItemKind(doc.ItemKind),
		ScopeID:               domain.ScopeID(doc.ScopeID),
		Backend:               domain.Backend(doc.Backend),
		ModelID:               doc.ModelID,
		Status:                domain.SessionStatus(doc.Status),
		AnsweredQuestions:     doc.AnsweredQuestions,
		TotalQuestions:        doc.TotalQuestions,
		CurrentDimensionIndex: doc.CurrentDimensionIndex,
		Progress:              doc.Progress,
		Locked:                doc.Locked,
		LastError:             doc.LastError,
		CreatedAt:             doc.CreatedAt,
		UpdatedAt:             doc.UpdatedAt,
	}
	for _, d := range doc.Dimensions {
		s.Dimensions = append(s.Dimensions, domain.DimensionQuestion(d))
	}
	if doc.ReportJSON != "" {
		var r domain.InsightReport
		if err := json.Unmarshal([]byte(doc.ReportJSON), &r); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		s.Report = &r
	}
	return s, nil
}

func toMessageDoc(m *domain.ExplorationMessage) messageDoc {
	doc := messageDoc{
		ID:         string(m.ID),
		Type:       string(m.Type),
		Content:    m.Content,
		OrderIndex: m.OrderIndex,
		CreatedAt:  m.CreatedAt,
	}
	if m.Metadata != nil {
		doc.HasMetadata = true
		doc.DimensionKey = m.Metadata.DimensionKey
		doc.Bonus = m.Metadata.Bonus
		doc.Fallback = m.Metadata.Fallback
	}
	return doc
}

func fromMessageDoc(sessionID domain.SessionID, doc messageDoc) *domain.ExplorationMessage {
	m := &domain.ExplorationMessage{
		ID:         domain.MessageID(doc.ID),
		SessionID:  sessionID,
		Type:       domain.MessageType(doc.Type),
		Content:    doc.Content,
		OrderIndex: doc.OrderIndex,
		CreatedAt:  doc.CreatedAt,
	}
	if doc.HasMetadata {
		m.Metadata = &domain.MessageMetadata{
			DimensionKey: doc.DimensionKey,
			Bonus:        doc.Bonus,
			Fallback:     doc.Fallback,
		}
	}
	return m
}

// ─────────────────────────────────────────
// ExplorationStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateSession(ctx context.Context, session *domain.ExplorationSession, msgs []*domain.ExplorationMessage) error {
	doc, err := toSessionDoc(session)
	if err != nil {
		return err
	}
	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(s.sessionDoc(session.ID), doc); err != nil {
			return err
		}
		return s.createMessages(tx, session.ID, 0, msgs)
	})
	if err != nil {
		return fmt.Errorf("firestore CreateSession: %w", err)
	}
	return nil
}

func (s *Store) SaveTurn(ctx context.Context, session *domain.ExplorationSession, msgs []*domain.ExplorationMessage) error {
	if len(msgs) == 0 {
		return s.UpdateSession(ctx, session)
	}
	doc, err := toSessionDoc(session)
	if err != nil {
		return err
	}

	first := msgs[0].OrderIndex
	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(s.sessionDoc(session.ID)); err != nil {
			if isNotFound(err) {
				return fmt.Errorf("session %s: %w", session.ID, domain.ErrNotFound)
			}
			return err
		}
		// The slot must be free and the previous one taken.
		if _, err := tx.Get(s.messageDoc(session.ID, first)); err == nil {
			return fmt.Errorf("order index %d taken: %w", first, domain.ErrOrderConflict)
		} else if !isNotFound(err) {
			return err
		}
		if first > 0 {
			if _, err := tx.Get(s.messageDoc(session.ID, first-1)); err != nil {
				if isNotFound(err) {
					return fmt.Errorf("order index %d missing: %w", first-1, domain.ErrOrderConflict)
				}
				return err
			}
		}

		if err := tx.Set(s.sessionDoc(session.ID), doc); err != nil {
			return err
		}
		return s.createMessages(tx, session.ID, first, msgs)
	})
	if err != nil {
		return fmt.Errorf("firestore SaveTurn: %w", err)
	}
	return nil
}

func (s *Store) createMessages(tx *firestore.Transaction, sessionID domain.SessionID, next int, msgs []*domain.ExplorationMessage) error {
	for _, m := range msgs {
		if m.OrderIndex != next {
			return fmt.Errorf("message %s has order index %d, want %d: %w", m.ID, m.OrderIndex, next, domain.ErrOrderConflict)
		}
		next++
		if err := tx.Create(s.messageDoc(sessionID, m.OrderIndex), toMessageDoc(m)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, session *domain.ExplorationSession) error {
	doc, err := toSessionDoc(session)
	if err != nil {
		return err
	}
	if _, err := s.sessionDoc(session.ID).Get(ctx); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("session %s: %w", session.ID, domain.ErrNotFound)
		}
		return fmt.Errorf("firestore UpdateSession: %w", err)
	}
	if _, err := s.sessionDoc(session.ID).Set(ctx, doc); err != nil {
		return fmt.Errorf("firestore UpdateSession: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.ExplorationSession, error) {
	snap, err := s.sessionDoc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("firestore GetSession: %w", err)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore GetSession decode: %w", err)
	}
	return fromSessionDoc(snap.Ref.ID, doc)
}

func (s *Store) FindActiveSession(ctx context.Context, ref domain.ItemRef) (*domain.ExplorationSession, error) {
	q := s.sessionsCol().
		Where("item_kind", "==", string(ref.Kind)).
		Where("item_id", "==", string(ref.ID)).
		Where("scope_id", "==", string(ref.ScopeID)).
		Where("locked", "==", false).
		OrderBy("created_at", firestore.Desc).
		Limit(1)

	iter := q.Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return nil, fmt.Errorf("active session for %s/%s: %w", ref.Kind, ref.ID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("firestore FindActiveSession: %w", err)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode sessionDoc: %w", err)
	}
	return fromSessionDoc(snap.Ref.ID, doc)
}

func (s *Store) ListMessages(ctx context.Context, sessionID domain.SessionID) ([]*domain.ExplorationMessage, error) {
	iter := s.messagesCol(sessionID).OrderBy("order_index", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []*domain.ExplorationMessage
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, fmt.Errorf("firestore ListMessages: %w", err)
		}

		var doc messageDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode messageDoc: %w", err)
		}
		out = append(out, fromMessageDoc(sessionID, doc))
	}
	return out, nil
}

// ─────────────────────────────────────────
// ItemStore implementation
// ─────────────────────────────────────────

func (s *Store) PutItem(ctx context.Context, item *domain.Item) error {
	ref := domain.ItemRef{Kind: item.Kind, ID: item.ID, ScopeID: item.ScopeID}
	doc := itemDoc{
		Kind:               string(item.Kind),
		ID:                 string(item.ID),
		ScopeID:            string(item.ScopeID),
		Name:               item.Name,
		Fields:             item.Fields,
		ValidationCoverage: item.ValidationCoverage,
		UpdatedAt:          time.Now().UTC(),
	}
	if _, err := s.itemDoc(ref).Set(ctx, doc); err != nil {
		return fmt.Errorf("firestore PutItem: %w", err)
	}
	return nil
}

func (s *Store) GetItem(ctx context.Context, ref domain.ItemRef) (*domain.Item, error) {
	snap, err := s.itemDoc(ref).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("item %s/%s: %w", ref.Kind, ref.ID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("firestore GetItem: %w", err)
	}

	var doc itemDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode itemDoc: %w", err)
	}
	return &domain.Item{
		ID:                 ref.ID,
		ScopeID:            ref.ScopeID,
		Kind:               ref.Kind,
		Name:               doc.Name,
		Fields:             doc.Fields,
		ValidationCoverage: doc.ValidationCoverage,
		UpdatedAt:          doc.UpdatedAt,
	}, nil
}

func (s *Store) SetValidationCoverage(ctx context.Context, ref domain.ItemRef, coverage int) error {
	_, err := s.itemDoc(ref).Update(ctx, []firestore.Update{
		{Path: "validation_coverage", Value: coverage},
		{Path: "updated_at", Value: time.Now().UTC()},
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("item %s/%s: %w", ref.Kind, ref.ID, domain.ErrNotFound)
		}
		return fmt.Errorf("firestore SetValidationCoverage: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────
// ResearchStore implementation
// ─────────────────────────────────────────

func toMethodDoc(rec domain.ResearchMethodRecord) methodDoc {
	return methodDoc{
		Method:         string(rec.Method),
		Status:         string(rec.Status),
		Progress:       rec.Progress,
		CompletedAt:    rec.CompletedAt,
		ArtifactsCount: rec.ArtifactsCount,
	}
}

func fromMethodDoc(ref domain.ItemRef, doc methodDoc) domain.ResearchMethodRecord {
	return domain.ResearchMethodRecord{
		Item:           ref,
		Method:         domain.ResearchMethod(doc.Method),
		Status:         domain.MethodStatus(doc.Status),
		Progress:       doc.Progress,
		CompletedAt:    doc.CompletedAt,
		ArtifactsCount: doc.ArtifactsCount,
	}
}

func readMethods(iter *firestore.DocumentIterator, ref domain.ItemRef) ([]domain.ResearchMethodRecord, error) {
	defer iter.Stop()
	var out []domain.ResearchMethodRecord
	for {
		snap, err := iter.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, err
		}
		var doc methodDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode methodDoc: %w", err)
		}
		out = append(out, fromMethodDoc(ref, doc))
	}
	return out, nil
}

func (s *Store) ListMethodRecords(ctx context.Context, ref domain.ItemRef) ([]domain.ResearchMethodRecord, error) {
	recs, err := readMethods(s.methodsCol(ref).Documents(ctx), ref)
	if err != nil {
		return nil, fmt.Errorf("firestore ListMethodRecords: %w", err)
	}
	return recs, nil
}

func (s *Store) PutMethodRecord(ctx context.Context, rec domain.ResearchMethodRecord) error {
	if _, err := s.methodsCol(rec.Item).Doc(string(rec.Method)).Set(ctx, toMethodDoc(rec)); err != nil {
		return fmt.Errorf("firestore PutMethodRecord: %w", err)
	}
	return nil
}

// CompleteMethod reads every record, marks method completed and writes it
// back in one transaction.
func (s *Store) CompleteMethod(ctx context.Context, ref domain.ItemRef, method domain.ResearchMethod, at domain.Timestamp) ([]domain.ResearchMethodRecord, error) {
	var out []domain.ResearchMethodRecord
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		records, err := readMethods(tx.Documents(s.methodsCol(ref)), ref)
		if err != nil {
			return err
		}

		rec := domain.ResearchMethodRecord{Item: ref, Method: method}
		idx := -1
		for i, r := range records {
			if r.Method == method {
				rec, idx = r, i
				break
			}
		}
		rec = rec.MarkCompleted(at)
		if err := tx.Set(s.methodsCol(ref).Doc(string(method)), toMethodDoc(rec)); err != nil {
			return err
		}

		if idx >= 0 {
			records[idx] = rec
		} else {
			records = append(records, rec)
		}
		out = records
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("firestore CompleteMethod: %w", err)
	}
	return out, nil
}
