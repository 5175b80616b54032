package exact

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
)

// maxProfileBody bounds how much of the profile response is read.
const maxProfileBody = 1 << 20

// Profile is the normalized Exact Online user.
type Profile struct {
	Provider        string `json:"provider"`
	ID              string `json:"id"`
	DisplayName     string `json:"displayName"`
	FirstName       string `json:"firstName"`
	MiddleName      string `json:"middleName"`
	LastName        string `json:"lastName"`
	CurrentDivision int    `json:"currentDivision"`
	Picture         string `json:"picture"`
	UserName        string `json:"userName"`
	LanguageCode    string `json:"languageCode"`
	Email           string `json:"email"`
	Title           string `json:"title"`
	Gender          string `json:"gender"`
	Language        string `json:"language"`

	// Raw and RawBody are only filled for the Atom/XML representation.
	Raw     map[string]any `json:"_json,omitempty"`
	RawBody string         `json:"_raw,omitempty"`
}

// meRecord is one element of d.results in the JSON representation.
// CurrentDivision is read with gjson, which takes it as a number or a
// numeric string.
type meRecord struct {
	UserID       string `json:"UserID"`
	FullName     string `json:"FullName"`
	FirstName    string `json:"FirstName"`
	MiddleName   string `json:"MiddleName"`
	LastName     string `json:"LastName"`
	PictureURL   string `json:"PictureUrl"`
	UserName     string `json:"UserName"`
	LanguageCode string `json:"LanguageCode"`
	Email        string `json:"Email"`
	Title        string `json:"Title"`
	Gender       string `json:"Gender"`
	Language     string `json:"Language"`
}

// UserProfile fetches the current user from {BaseURL}/api/v1/current/Me.
func (s *Strategy) UserProfile(ctx context.Context, accessToken string) (p *Profile, err error) {
	if s.onProfile != nil {
		start := time.Now()
		defer func() { s.onProfile(s.format, err, time.Since(start)) }()
	}

	body, err := s.fetchProfile(ctx, accessToken)
	if err != nil {
		return nil, &InternalOAuthError{Message: MsgProfileFailed, Err: err}
	}
	if s.format == FormatXML {
		return ParseXMLProfile(body)
	}
	return ParseJSONProfile(body)
}

func (s *Strategy) fetchProfile(ctx context.Context, accessToken string) ([]byte, error) {
	if accessToken == "" {
		return nil, ErrMissingAccessToken
	}

	// The oauth2 transport sets "Authorization: Bearer <token>".
	client := oauth2.NewClient(s.clientContext(ctx), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	if s.retries == 0 {
		return s.getProfile(ctx, client)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryInterval
	b.MaxInterval = 10 * s.retryInterval
	b.Reset()

	return backoff.Retry(ctx, func() ([]byte, error) {
		body, err := s.getProfile(ctx, client)
		var se *StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return nil, backoff.Permanent(err)
		}
		return body, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.retries+1)),
	)
}

func (s *Strategy) getProfile(ctx context.Context, client *http.Client) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.profileURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", s.format.accept())

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBody))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

// ParseJSONProfile maps the OData envelope {"d":{"results":[{...}]}}.
func ParseJSONProfile(body []byte) (*Profile, error) {
	if !gjson.ValidBytes(body) {
		// Surface the decoder's own syntax error.
		var probe json.RawMessage
		if err := json.Unmarshal(body, &probe); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("exact: invalid profile json")
	}

	results := gjson.GetBytes(body, "d.results")
	if !results.IsArray() {
		return nil, ErrMissingResults
	}
	first := results.Get("0")
	if !first.Exists() {
		return nil, ErrMissingResults
	}

	var rec meRecord
	if err := json.Unmarshal([]byte(first.Raw), &rec); err != nil {
		return nil, err
	}
	if rec.UserID == "" {
		return nil, ErrMissingUserID
	}

	return &Profile{
		Provider:        Name,
		ID:              rec.UserID,
		DisplayName:     rec.FullName,
		FirstName:       rec.FirstName,
		MiddleName:      rec.MiddleName,
		LastName:        rec.LastName,
		CurrentDivision: int(first.Get("CurrentDivision").Int()),
		Picture:         rec.PictureURL,
		UserName:        rec.UserName,
		LanguageCode:    rec.LanguageCode,
		Email:           rec.Email,
		Title:           rec.Title,
		Gender:          rec.Gender,
		Language:        rec.Language,
	}, nil
}

// Atom documents. Element names are matched by local name so both a <feed>
// and a bare <entry> root are accepted.
type atomDocument struct {
	XMLName xml.Name
	Entries []atomEntry  `xml:"entry"`
	Content *atomContent `xml:"content"`
}

type atomEntry struct {
	Content atomContent `xml:"content"`
}

type atomContent struct {
	Properties *atomProperties `xml:"properties"`
}

type atomProperties struct {
	Fields []atomField `xml:",any"`
}

type atomField struct {
	XMLName xml.Name
	Null    string `xml:"null,attr"`
	Value   string `xml:",chardata"`
}

// ParseXMLProfile maps feed/entry/content/m:properties. DisplayName is
// FirstName + " " + LastName.
func ParseXMLProfile(body []byte) (*Profile, error) {
	var doc atomDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, err
	}

	var props *atomProperties
	switch doc.XMLName.Local {
	case "feed":
		if len(doc.Entries) > 0 {
			props = doc.Entries[0].Content.Properties
		}
	case "entry":
		if doc.Content != nil {
			props = doc.Content.Properties
		}
	}
	if props == nil {
		return nil, ErrMissingEntry
	}

	raw := make(map[string]any, len(props.Fields))
	for _, f := range props.Fields {
		if f.Null == "true" {
			raw[f.XMLName.Local] = nil
			continue
		}
		raw[f.XMLName.Local] = f.Value
	}

	id, _ := raw["UserID"].(string)
	if id == "" {
		return nil, ErrMissingUserID
	}
	first, _ := raw["FirstName"].(string)
	last, _ := raw["LastName"].(string)

	return &Profile{
		Provider:    Name,
		ID:          id,
		DisplayName: first + " " + last,
		FirstName:   first,
		LastName:    last,
		Raw:         raw,
		RawBody:     string(body),
	}, nil
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
