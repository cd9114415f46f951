package caldav

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tazhate/calbridge/internal/domain"
	"github.com/tazhate/calbridge/internal/provider"
)

const (
	// Apple iCloud CalDAV endpoint
	DefaultiCloudURL = "https://caldav.icloud.com"
)

// Client is a CalDAV calendar provider. Event IDs are calendar object paths.
type Client struct {
	baseURL    string
	username   string
	password   string
	calendarID string // Optional: specific calendar to use as default
	loc        *time.Location
	logger     *zap.Logger

	mu         sync.Mutex
	httpClient *http.Client
	client     *caldav.Client
	homeSet    string
}

var _ provider.Provider = (*Client)(nil)

// NewClient creates a new CalDAV client
func NewClient(baseURL, username, password string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultiCloudURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
		loc:      time.UTC,
		logger:   logger,
	}
}

// IsConfigured returns true if the client has credentials
func (c *Client) IsConfigured() bool {
	return c.username != "" && c.password != ""
}

// SetCalendarID sets the calendar used when no explicit target is given
func (c *Client) SetCalendarID(id string) {
	c.calendarID = id
}

// SetLocation sets the zone floating times are read in
func (c *Client) SetLocation(loc *time.Location) {
	if loc != nil {
		c.loc = loc
	}
}

// connect establishes connection to CalDAV server
func (c *Client) connect() (*caldav.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	httpClient := &http.Client{
		Transport: &basicAuthTransport{
			username: c.username,
			password: c.password,
		},
		Timeout: 30 * time.Second,
	}

	client, err := caldav.NewClient(httpClient, c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to CalDAV: %w", err)
	}

	c.httpClient = httpClient
	c.client = client
	return client, nil
}

// basicAuthTransport adds Basic Auth to HTTP requests
type basicAuthTransport struct {
	username string
	password string
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	return http.DefaultTransport.RoundTrip(req)
}

// calendarHome finds and caches the user's calendar home set
func (c *Client) calendarHome(ctx context.Context) (string, error) {
	client, err := c.connect()
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	home := c.homeSet
	c.mu.Unlock()
	if home != "" {
		return home, nil
	}

	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", mapError("find principal", err)
	}

	home, err = client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", mapError("find home set", err)
	}

	c.mu.Lock()
	c.homeSet = home
	c.mu.Unlock()
	return home, nil
}

// RequestAccess checks the credentials by discovering the principal. 401/403 is a denial, not an error.
func (c *Client) RequestAccess(ctx context.Context) (bool, error) {
	if !c.IsConfigured() {
		return false, nil
	}
	if _, err := c.calendarHome(ctx); err != nil {
		if errors.Is(err, domain.ErrPermissionDenied) {
			c.logger.Warn("CalDAV access denied", zap.String("user", c.username))
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Calendars returns all calendars that can hold events
func (c *Client) Calendars(ctx context.Context) ([]domain.Calendar, error) {
	home, err := c.calendarHome(ctx)
	if err != nil {
		return nil, err
	}
	client, err := c.connect()
	if err != nil {
		return nil, err
	}

	cals, err := client.FindCalendars(ctx, home)
	if err != nil {
		return nil, mapError("find calendars", err)
	}

	result := make([]domain.Calendar, 0, len(cals))
	for _, cal := range cals {
		if !supportsEvents(cal.SupportedComponentSet) {
			continue
		}
		result = append(result, domain.Calendar{
			ID:       cal.Path,
			Title:    cal.Name,
			SourceID: home,
		})
	}
	return result, nil
}

func supportsEvents(comps []string) bool {
	if len(comps) == 0 {
		return true
	}
	for _, comp := range comps {
		if strings.EqualFold(comp, "VEVENT") {
			return true
		}
	}
	return false
}

func (c *Client) Calendar(ctx context.Context, id string) (*domain.Calendar, error) {
	cals, err := c.Calendars(ctx)
	if err != nil {
		return nil, err
	}
	id = collectionPath(id)
	for i := range cals {
		if collectionPath(cals[i].ID) == id {
			return &cals[i], nil
		}
	}
	return nil, nil
}

// DefaultCalendar returns the configured calendar, or the first one on the server
func (c *Client) DefaultCalendar(ctx context.Context) (*domain.Calendar, error) {
	if c.calendarID != "" {
		return c.Calendar(ctx, c.calendarID)
	}
	cals, err := c.Calendars(ctx)
	if err != nil {
		return nil, err
	}
	if len(cals) == 0 {
		return nil, nil
	}
	return &cals[0], nil
}

// DefaultSource is the calendar home set new calendars are created in
func (c *Client) DefaultSource(ctx context.Context) (*domain.Source, error) {
	home, err := c.calendarHome(ctx)
	if err != nil {
		return nil, err
	}
	if home == "" {
		return nil, nil
	}
	return &domain.Source{ID: home, Title: c.username}, nil
}

type mkcalendarRequest struct {
	XMLName xml.Name      `xml:"urn:ietf:params:xml:ns:caldav mkcalendar"`
	Set     mkcalendarSet `xml:"DAV: set"`
}

type mkcalendarSet struct {
	Prop mkcalendarProp `xml:"DAV: prop"`
}

type mkcalendarProp struct {
	DisplayName string            `xml:"DAV: displayname"`
	Color       string            `xml:"http://apple.com/ns/ical/ calendar-color,omitempty"`
	Components  supportedCompsSet `xml:"urn:ietf:params:xml:ns:caldav supported-calendar-component-set"`
}

type supportedCompsSet struct {
	Comps []supportedComp `xml:"urn:ietf:params:xml:ns:caldav comp"`
}

type supportedComp struct {
	Name string `xml:"name,attr"`
}

// SaveCalendar creates a calendar collection with MKCALENDAR and fills cal.ID
func (c *Client) SaveCalendar(ctx context.Context, cal *domain.Calendar) error {
	home, err := c.calendarHome(ctx)
	if err != nil {
		return err
	}
	if cal.ID != "" {
		return fmt.Errorf("update calendar %s: not supported", cal.ID)
	}

	calPath := collectionPath(home) + uuid.NewString() + "/"
	body, err := xml.Marshal(mkcalendarRequest{
		Set: mkcalendarSet{Prop: mkcalendarProp{
			DisplayName: cal.Title,
			Color:       cal.Color,
			Components:  supportedCompsSet{Comps: []supportedComp{{Name: "VEVENT"}}},
		}},
	})
	if err != nil {
		return fmt.Errorf("encode mkcalendar: %w", err)
	}

	target, err := c.resolve(calPath)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "MKCALENDAR", target, bytes.NewReader(append([]byte(xml.Header), body...)))
	if err != nil {
		return fmt.Errorf("build mkcalendar: %w", err)
	}
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mkcalendar: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return mapError("mkcalendar", fmt.Errorf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
	}

	cal.ID = calPath
	cal.SourceID = home
	c.logger.Info("calendar created", zap.String("path", calPath), zap.String("title", cal.Title))
	return nil
}

func (c *Client) resolve(p string) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse CalDAV URL: %w", err)
	}
	return base.ResolveReference(&url.URL{Path: p}).String(), nil
}

func (c *Client) RemoveCalendar(ctx context.Context, id string) error {
	client, err := c.connect()
	if err != nil {
		return err
	}
	if err := client.RemoveAll(ctx, collectionPath(id)); err != nil {
		return mapError("remove calendar", err)
	}
	return nil
}

// Events queries each calendar and expands recurring events client-side
func (c *Client) Events(ctx context.Context, q provider.Query) ([]domain.Event, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     "VCALENDAR",
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{
				{
					Name:  "VEVENT",
					Start: q.Start,
					End:   q.End,
				},
			},
		},
	}

	var result []domain.Event
	for _, calID := range q.CalendarIDs {
		objects, err := client.QueryCalendar(ctx, collectionPath(calID), query)
		if err != nil {
			return nil, mapError("query calendar", err)
		}

		for _, obj := range objects {
			occurrences, err := expandObject(obj.Data, c.loc, q.Start, q.End)
			if err != nil {
				c.logger.Debug("skip calendar object", zap.String("path", obj.Path), zap.Error(err))
				continue // Skip invalid events
			}
			for _, occ := range occurrences {
				occ.ID = obj.Path
				occ.CalendarID = calID
				result = append(result, occ)
			}
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Start.Equal(result[j].Start) {
			return result[i].ID < result[j].ID
		}
		return result[i].Start.Before(result[j].Start)
	})
	return result, nil
}

func (c *Client) Event(ctx context.Context, id string) (*domain.Event, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}

	obj, err := client.GetCalendarObject(ctx, id)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, mapError("get event", err)
	}

	ev, err := parseEvent(obj.Data, c.loc)
	if err != nil {
		return nil, fmt.Errorf("parse event %s: %w", id, err)
	}
	ev.ID = obj.Path
	if ev.ID == "" {
		ev.ID = id
	}
	ev.CalendarID = path.Dir(strings.TrimSuffix(id, "/")) + "/"
	return ev, nil
}

// SaveEvent writes the event as <calendar>/<uid>.ics and fills ev.ID
func (c *Client) SaveEvent(ctx context.Context, ev *domain.Event) error {
	client, err := c.connect()
	if err != nil {
		return err
	}

	calendarPath := ev.CalendarID
	if calendarPath == "" {
		calendarPath = c.calendarID
	}
	if calendarPath == "" {
		return fmt.Errorf("calendar path not specified")
	}

	eventPath := ev.ID
	uid := strings.TrimSuffix(path.Base(eventPath), ".ics")
	if eventPath == "" {
		uid = uuid.NewString()
		eventPath = collectionPath(calendarPath) + uid + ".ics"
	}

	cal, err := eventToICS(ev, uid)
	if err != nil {
		return err
	}
	c.logger.Debug("put calendar object", zap.String("path", eventPath), zap.String("ics", SerializeCalendar(cal)))

	if _, err := client.PutCalendarObject(ctx, eventPath, cal); err != nil {
		return mapError("create event", err)
	}

	ev.ID = eventPath
	ev.CalendarID = calendarPath
	return nil
}

// RemoveEvent deletes the calendar object, i.e. the whole series for recurring events
func (c *Client) RemoveEvent(ctx context.Context, id string) error {
	client, err := c.connect()
	if err != nil {
		return err
	}
	if err := client.RemoveAll(ctx, id); err != nil {
		return mapError("delete event", err)
	}
	return nil
}

func collectionPath(p string) string {
	if p == "" || strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}

// isStatus matches the "<code> <status text>" go-webdav puts at the front of HTTP errors
func isStatus(err error, code int) bool {
	if err == nil {
		return false
	}
	status := fmt.Sprintf("%d %s", code, http.StatusText(code))
	msg := err.Error()
	return strings.HasPrefix(msg, status) || strings.Contains(msg, ": "+status)
}

// mapError turns authorization failures into ErrPermissionDenied
func mapError(op string, err error) error {
	if isStatus(err, http.StatusUnauthorized) || isStatus(err, http.StatusForbidden) {
		return domain.WrapError(fmt.Errorf("%s: %w", op, err), domain.ErrPermissionDenied.Code, domain.ErrPermissionDenied.Message)
	}
	return fmt.Errorf("%s: %w", op, err)
}
