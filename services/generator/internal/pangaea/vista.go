package pangaea

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	defaultVistaEndpoint = "https://ws.pangaea.de/ws/services/PangaVista"
	operationNamespace   = "http://soapinterop.org/"
	soapEnvelopeNS       = "http://schemas.xmlsoap.org/soap/envelope/"
	soapEncodingNS       = "http://schemas.xmlsoap.org/soap/encoding/"

	opRegisterSession = "registerSession"
	opMetadata        = "metadata"

	// DefaultSettle is the pause after registering a session. Using a session
	// immediately after registration fails intermittently.
	DefaultSettle = time.Second

	faultSessionExpired = "You must register a valid session first!"
	faultNotFoundPrefix = "This is not a valid PANGAEA DOI or DATASETID"
)

// SessionState tracks the PangaVista session token.
type SessionState int

const (
	NoSession SessionState = iota
	Active
	Refreshing
)

func (s SessionState) String() string {
	switch s {
	case NoSession:
		return "no-session"
	case Active:
		return "active"
	case Refreshing:
		return "refreshing"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// VistaOptions configures a VistaClient.
type VistaOptions struct {
	Endpoint   string
	HTTPClient *http.Client
	Settle     time.Duration
	Logger     *log.Logger
}

// VistaClient calls the PangaVista SOAP service and owns the session token.
type VistaClient struct {
	endpoint   string
	httpClient *http.Client
	settle     time.Duration
	logger     *log.Logger

	mu      sync.Mutex
	state   SessionState
	session string
}

// NewVistaClient builds a client. A negative Settle disables the pause.
func NewVistaClient(opts VistaOptions) *VistaClient {
	c := &VistaClient{
		endpoint:   opts.Endpoint,
		httpClient: opts.HTTPClient,
		settle:     opts.Settle,
		logger:     opts.Logger,
	}
	if c.endpoint == "" {
		c.endpoint = defaultVistaEndpoint
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.settle == 0 {
		c.settle = DefaultSettle
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	return c
}

// State returns the current session state.
func (c *VistaClient) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RenewSession registers a new session, replacing any existing token.
func (c *VistaClient) RenewSession(ctx context.Context) error {
	c.mu.Lock()
	c.state = Refreshing
	c.session = ""
	c.mu.Unlock()

	token, err := c.call(ctx, opRegisterSession, nil)
	if err != nil {
		c.setState(NoSession, "")
		return fmt.Errorf("register pangavista session: %w", err)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		c.setState(NoSession, "")
		return errors.New("register pangavista session: empty session id")
	}

	if c.settle > 0 {
		timer := time.NewTimer(c.settle)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.setState(NoSession, "")
			return ctx.Err()
		case <-timer.C:
		}
	}
	c.setState(Active, token)
	c.logger.Printf("pangavista session registered")
	return nil
}

func (c *VistaClient) setState(state SessionState, token string) {
	c.mu.Lock()
	c.state = state
	c.session = token
	c.mu.Unlock()
}

// FetchMetadata returns the metadata XML for id, registering a session first
// when none is active. An expired session yields ErrSessionExpired and leaves
// the client in NoSession; the caller decides whether to renew.
func (c *VistaClient) FetchMetadata(ctx context.Context, id string) ([]byte, error) {
	c.mu.Lock()
	state, token := c.state, c.session
	c.mu.Unlock()

	if state != Active {
		if err := c.RenewSession(ctx); err != nil {
			return nil, err
		}
		c.mu.Lock()
		token = c.session
		c.mu.Unlock()
	}

	xmlText, err := c.call(ctx, opMetadata, []soapParam{{Name: "session", Value: token}, {Name: "URI", Value: id}})
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			c.setState(NoSession, "")
		}
		return nil, fmt.Errorf("metadata for %s: %w", id, err)
	}
	return []byte(xmlText), nil
}

type soapParam struct {
	Name  string
	Value string
}

type soapFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

type soapResponse struct {
	Body struct {
		Fault    *soapFault `xml:"Fault"`
		Response *struct {
			XMLName xml.Name
			Return  struct {
				XMLName xml.Name
				Value   string `xml:",chardata"`
			} `xml:",any"`
		} `xml:",any"`
	} `xml:"Body"`
}

func buildEnvelope(operation string, params []soapParam) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	fmt.Fprintf(&buf, `<soapenv:Envelope xmlns:soapenv=%q xmlns:xsd="http://www.w3.org/2001/XMLSchema" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">`, soapEnvelopeNS)
	buf.WriteString(`<soapenv:Body>`)
	fmt.Fprintf(&buf, `<ns1:%s soapenv:encodingStyle=%q xmlns:ns1=%q>`, operation, soapEncodingNS, operationNamespace)
	for _, p := range params {
		fmt.Fprintf(&buf, `<%s xsi:type="xsd:string">`, p.Name)
		if err := xml.EscapeText(&buf, []byte(p.Value)); err != nil {
			return nil, err
		}
		fmt.Fprintf(&buf, `</%s>`, p.Name)
	}
	fmt.Fprintf(&buf, `</ns1:%s>`, operation)
	buf.WriteString(`</soapenv:Body></soapenv:Envelope>`)
	return buf.Bytes(), nil
}

// call invokes an rpc/encoded operation that returns a single string.
func (c *VistaClient) call(ctx context.Context, operation string, params []soapParam) (string, error) {
	body, err := buildEnvelope(operation, params)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", `""`)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call %s: %w", operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read %s response: %w", operation, err)
	}

	var env soapResponse
	if err := xml.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("decode %s response (status %s): %w", operation, resp.Status, err)
	}
	if env.Body.Fault != nil {
		return "", classifyFault(env.Body.Fault)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("call %s: unexpected status %s", operation, resp.Status)
	}
	if env.Body.Response == nil {
		return "", fmt.Errorf("call %s: empty response body", operation)
	}
	return env.Body.Response.Return.Value, nil
}

// classifyFault maps PangaVista fault text onto sentinel errors. The service
// has no fault codes for these cases, so this depends on its exact wording.
func classifyFault(f *soapFault) error {
	msg := strings.TrimSpace(f.String)
	fe := &FaultError{Code: strings.TrimSpace(f.Code), String: msg}
	switch {
	case msg == faultSessionExpired:
		return fmt.Errorf("%w: %w", ErrSessionExpired, fe)
	case strings.HasPrefix(msg, faultNotFoundPrefix):
		return fmt.Errorf("%w: %w", ErrNotFound, fe)
	default:
		return fe
	}
}
