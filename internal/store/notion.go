package store

import (
	"context"
	"strconv"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/collector-cli/internal/model"
)

// NotionAPI is the subset of the Notion client the store uses; tests supply
// a fake.
type NotionAPI interface {
	GetDatabase(ctx context.Context, dbID string) (*notionapi.Database, error)
	UpdateDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseUpdateRequest) (*notionapi.Database, error)
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

// notionAPI wraps *notionapi.Client with the Notion rate limit (3 req/s).
type notionAPI struct {
	inner   *notionapi.Client
	limiter *rate.Limiter
}

// NewNotionAPI creates a rate-limited Notion API wrapper.
func NewNotionAPI(token string) NotionAPI {
	return &notionAPI{
		inner:   notionapi.NewClient(notionapi.Token(token)),
		limiter: rate.NewLimiter(3, 1),
	}
}

func (c *notionAPI) wait(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

func (c *notionAPI) GetDatabase(ctx context.Context, dbID string) (*notionapi.Database, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "notion: rate limit")
	}
	db, err := c.inner.Database.Get(ctx, notionapi.DatabaseID(dbID))
	return db, eris.Wrapf(err, "notion: get database %s", dbID)
}

func (c *notionAPI) UpdateDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseUpdateRequest) (*notionapi.Database, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "notion: rate limit")
	}
	db, err := c.inner.Database.Update(ctx, notionapi.DatabaseID(dbID), req)
	return db, eris.Wrapf(err, "notion: update database %s", dbID)
}

func (c *notionAPI) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "notion: rate limit")
	}
	resp, err := c.inner.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
	return resp, eris.Wrapf(err, "notion: query database %s", dbID)
}

func (c *notionAPI) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "notion: rate limit")
	}
	page, err := c.inner.Page.Create(ctx, req)
	return page, eris.Wrap(err, "notion: create page")
}

func (c *notionAPI) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "notion: rate limit")
	}
	page, err := c.inner.Page.Update(ctx, notionapi.PageID(pageID), req)
	return page, eris.Wrapf(err, "notion: update page %s", pageID)
}

// NotionStore implements TableStore on a Notion database: properties are
// fields, pages are records. Notion has no batch insert, so this backend
// deliberately does not implement BatchInserter; the scheduler degrades to
// one record at a time.
type NotionStore struct {
	api  NotionAPI
	dbID string

	titleProp string
}

// NewNotionStore binds a store to one Notion database.
func NewNotionStore(api NotionAPI, dbID string) *NotionStore {
	return &NotionStore{api: api, dbID: dbID}
}

func (s *NotionStore) Close() error { return nil }

// titleField resolves (and caches) the database's title property name. Every
// Notion database has exactly one; the record's first text field is routed
// into it.
func (s *NotionStore) titleField(ctx context.Context) (string, error) {
	if s.titleProp != "" {
		return s.titleProp, nil
	}
	db, err := s.api.GetDatabase(ctx, s.dbID)
	if err != nil {
		return "", err
	}
	for name, cfg := range db.Properties {
		if cfg.GetType() == notionapi.PropertyConfigTypeTitle {
			s.titleProp = name
			return name, nil
		}
	}
	return "", eris.Errorf("notion: database %s has no title property", s.dbID)
}

func (s *NotionStore) ListFields(ctx context.Context) ([]model.Field, error) {
	db, err := s.api.GetDatabase(ctx, s.dbID)
	if err != nil {
		return nil, err
	}
	out := make([]model.Field, 0, len(db.Properties))
	for name, cfg := range db.Properties {
		f := model.Field{Name: name, Kind: model.FieldText}
		switch cfg.GetType() {
		case notionapi.PropertyConfigTypeNumber:
			f.Kind = model.FieldNumber
		case notionapi.PropertyConfigTypeURL:
			f.Kind = model.FieldURL
		}
		out = append(out, f)
	}
	return out, nil
}

func (s *NotionStore) EnsureField(ctx context.Context, name string, kind model.FieldKind) error {
	existing, err := s.ListFields(ctx)
	if err != nil {
		return err
	}
	for _, f := range existing {
		if f.Name == name {
			return nil
		}
	}

	var cfg notionapi.PropertyConfig
	switch kind {
	case model.FieldNumber:
		cfg = notionapi.NumberPropertyConfig{
			Type:   notionapi.PropertyConfigTypeNumber,
			Number: notionapi.NumberFormat{Format: notionapi.FormatNumber},
		}
	case model.FieldURL:
		cfg = notionapi.URLPropertyConfig{Type: notionapi.PropertyConfigTypeURL}
	default:
		cfg = notionapi.RichTextPropertyConfig{Type: notionapi.PropertyConfigTypeRichText}
	}

	_, err = s.api.UpdateDatabase(ctx, s.dbID, &notionapi.DatabaseUpdateRequest{
		Properties: notionapi.PropertyConfigs{name: cfg},
	})
	return err
}

func (s *NotionStore) ScanRecords(ctx context.Context, pageToken string) (*RecordPage, error) {
	req := &notionapi.DatabaseQueryRequest{PageSize: scanPageSize}
	if pageToken != "" {
		req.StartCursor = notionapi.Cursor(pageToken)
	}
	resp, err := s.api.QueryDatabase(ctx, s.dbID, req)
	if err != nil {
		return nil, err
	}

	page := &RecordPage{HasMore: resp.HasMore, NextPageToken: string(resp.NextCursor)}
	for _, p := range resp.Results {
		rec := Record{ID: string(p.ID), Values: make(map[string]any, len(p.Properties))}
		for name, prop := range p.Properties {
			if v, ok := propertyValue(prop); ok {
				rec.Values[name] = v
			}
		}
		page.Records = append(page.Records, rec)
	}
	return page, nil
}

// propertyValue flattens a page property to a plain value; unset properties
// report ok=false so empty-slot detection sees them as empty.
func propertyValue(prop notionapi.Property) (any, bool) {
	switch p := prop.(type) {
	case *notionapi.TitleProperty:
		if text := plainText(p.Title); text != "" {
			return text, true
		}
	case *notionapi.RichTextProperty:
		if text := plainText(p.RichText); text != "" {
			return text, true
		}
	case *notionapi.URLProperty:
		if p.URL != "" {
			return p.URL, true
		}
	case *notionapi.NumberProperty:
		if p.Number != 0 {
			return p.Number, true
		}
	}
	return nil, false
}

func plainText(rts []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range rts {
		b.WriteString(rt.PlainText)
	}
	return strings.TrimSpace(b.String())
}

func (s *NotionStore) SetCellValue(ctx context.Context, field, rowID string, value any) error {
	title, err := s.titleField(ctx)
	if err != nil {
		return err
	}
	_, err = s.api.UpdatePage(ctx, rowID, &notionapi.PageUpdateRequest{
		Properties: notionapi.Properties{field: buildProperty(field, title, value)},
	})
	return err
}

func (s *NotionStore) AddRecord(ctx context.Context, values map[string]any) (string, error) {
	title, err := s.titleField(ctx)
	if err != nil {
		return "", err
	}
	props := make(notionapi.Properties, len(values))
	for name, v := range values {
		props[name] = buildProperty(name, title, v)
	}
	page, err := s.api.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(s.dbID),
		},
		Properties: props,
	})
	if err != nil {
		return "", err
	}
	return string(page.ID), nil
}

// buildProperty converts a plain value into the page property for a field.
// The field matching the database's title property becomes the page title.
func buildProperty(field, titleProp string, value any) notionapi.Property {
	if field == titleProp {
		return notionapi.TitleProperty{
			Type: notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: asString(value)}},
			},
		}
	}
	switch v := value.(type) {
	case int64:
		return notionapi.NumberProperty{Number: float64(v)}
	case float64:
		return notionapi.NumberProperty{Number: v}
	case int:
		return notionapi.NumberProperty{Number: float64(v)}
	}
	return notionapi.RichTextProperty{
		Type: notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{
			{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: asString(value)}},
		},
	}
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case nil:
		return ""
	}
	return ""
}
