// Package vectorsolutions submits training records through the Vector
// Solutions web form by driving Chromium over the DevTools protocol.
package vectorsolutions

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/okian/trainingbot/internal/domain/model"
	"github.com/okian/trainingbot/pkg/logger"
)

const (
	defaultNavTimeout = 30 * time.Second
	defaultAuthPath   = "state/auth_state.json"
	stateDirPerm      = 0o750
	stateFilePerm     = 0o600
)

// Client owns one browser and submits assignments through fresh pages.
type Client struct {
	loginURL string
	formURL  string

	user        string
	pass        string
	authPath    string
	headless    bool
	bin         string
	controlURL  string
	navTimeout  time.Duration
	artifactDir string
	sel         Selectors
	loginRe     *regexp.Regexp

	mu       sync.Mutex
	launch   *launcher.Launcher
	browser  *rod.Browser
	attached bool

	logger logger.Logger
}

// NewClient creates a Client for the given login and form pages. Start must
// be called before Submit.
func NewClient(loginURL, formURL string, opts ...Option) *Client {
	c := &Client{
		loginURL:   loginURL,
		formURL:    formURL,
		authPath:   defaultAuthPath,
		headless:   true,
		navTimeout: defaultNavTimeout,
		sel:        DefaultSelectors(),
		logger:     logger.Get().Named("vectorsolutions"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.loginRe = loginPathPattern(loginURL)
	return c
}

// Start launches the browser, restores saved cookies and signs in when the
// login page asks for a password.
func (c *Client) Start(ctx context.Context) error {
	if err := c.connect(c.headless); err != nil {
		return err
	}
	if err := c.restoreState(); err != nil {
		c.logger.Warn(ctx, "auth state not restored", logger.String("path", c.authPath), logger.Error(err))
	}
	if err := c.login(ctx); err != nil {
		return err
	}
	if err := c.saveState(); err != nil {
		c.logger.Warn(ctx, "auth state not saved", logger.String("path", c.authPath), logger.Error(err))
	}
	return nil
}

// Close shuts the browser down. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.browser != nil && !c.attached {
		err = c.browser.Close()
	}
	c.browser = nil
	if c.launch != nil {
		c.launch.Kill()
		c.launch.Cleanup()
		c.launch = nil
	}
	return err
}

// Bootstrap opens a visible browser on the login page and waits for the
// operator to finish signing in, then saves the cookies.
func (c *Client) Bootstrap(ctx context.Context, in io.Reader, out io.Writer) error {
	if err := c.connect(false); err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	page, err := c.newPage(ctx)
	if err != nil {
		return err
	}
	if err := page.Timeout(c.navTimeout).Navigate(c.loginURL); err != nil {
		return transport("open login page", err)
	}

	_, _ = fmt.Fprintln(out, "Complete the login in the browser window, then press Enter here.")
	line := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(in).ReadString('\n')
		if errors.Is(err, io.EOF) {
			err = nil
		}
		line <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-line:
		if err != nil {
			return fmt.Errorf("read confirmation: %w", err)
		}
	}

	if err := c.saveState(); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Saved auth state to %s\n", c.authPath)
	return nil
}

func (c *Client) connect(headless bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser != nil {
		return nil
	}

	u := c.controlURL
	if u == "" {
		l := launcher.New().Headless(headless)
		if c.bin != "" {
			l = l.Bin(c.bin)
		}
		launched, err := l.Launch()
		if err != nil {
			return transport("launch browser", err)
		}
		c.launch = l
		u = launched
	} else {
		c.attached = true
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		return transport("connect browser", err)
	}
	c.browser = b
	return nil
}

func (c *Client) newPage(ctx context.Context) (*rod.Page, error) {
	c.mu.Lock()
	b := c.browser
	c.mu.Unlock()
	if b == nil {
		return nil, transport("open page", ErrNotStarted)
	}
	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, transport("open page", err)
	}
	return page.Context(ctx), nil
}

// login signs in when the login page shows a password field. Without
// credentials a password prompt is an auth failure.
func (c *Client) login(ctx context.Context) error {
	if c.loginURL == "" {
		return nil
	}
	page, err := c.newPage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = page.Close() }()

	p := page.Timeout(c.navTimeout)
	if err := p.Navigate(c.loginURL); err != nil {
		return transport("open login page", err)
	}
	if err := p.WaitLoad(); err != nil {
		return transport("load login page", err)
	}

	has, pw, err := page.Has(c.sel.Password)
	if err != nil {
		return transport("inspect login page", err)
	}
	if !has {
		c.logger.Debug(ctx, "session restored, no login needed")
		return nil
	}
	if c.user == "" || c.pass == "" {
		return fmt.Errorf("%w: login required and no credentials configured; run the login command", model.ErrAuth)
	}

	userEl, err := p.Element(c.sel.Username)
	if err != nil {
		return transport("find username field", err)
	}
	if err := fill(userEl, c.user); err != nil {
		return transport("type username", err)
	}
	if err := fill(pw, c.pass); err != nil {
		return transport("type password", err)
	}
	if err := clickText(p, c.sel.LoginText); err != nil {
		// SSO pages may continue on Enter alone.
		c.logger.Warn(ctx, "login button not found", logger.Error(err))
	}
	_ = p.WaitLoad()
	_ = page.WaitStable(time.Second)

	if still, _, _ := page.Has(c.sel.Password); still {
		return fmt.Errorf("%w: credentials were not accepted", model.ErrAuth)
	}
	c.logger.Info(ctx, "signed in", logger.String("user", c.user))
	return nil
}

// loginPathPattern matches URLs on the login page, used to spot a session
// that expired mid-run.
func loginPathPattern(loginURL string) *regexp.Regexp {
	path := loginURL
	if i := strings.Index(path, "://"); i >= 0 {
		path = path[i+3:]
	}
	if i := strings.Index(path, "/"); i >= 0 {
		path = path[i:]
	} else {
		path = ""
	}
	path = strings.TrimRight(strings.SplitN(path, "?", 2)[0], "/")
	if path == "" {
		return regexp.MustCompile(`(?i)/(login|signin|sign-in)\b`)
	}
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(path) + `(/|\?|#|$)`)
}

// readState loads cookies saved by writeState. A missing file is not an error.
func readState(path string) ([]*proto.NetworkCookie, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read auth state: %w", err)
	}
	var state struct {
		Cookies []*proto.NetworkCookie `json:"cookies"`
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode auth state: %w", err)
	}
	return state.Cookies, nil
}

func writeState(path string, cookies []*proto.NetworkCookie) error {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return fmt.Errorf("create auth state dir: %w", err)
	}
	data, err := json.MarshalIndent(struct {
		SavedAt time.Time              `json:"saved_at"`
		Cookies []*proto.NetworkCookie `json:"cookies"`
	}{time.Now().UTC(), cookies}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode auth state: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, stateFilePerm); err != nil {
		return fmt.Errorf("write auth state: %w", err)
	}
	return os.Rename(tmp, path)
}

func (c *Client) restoreState() error {
	cookies, err := readState(c.authPath)
	if err != nil || len(cookies) == 0 {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.browser.SetCookies(proto.CookiesToParams(cookies))
}

func (c *Client) saveState() error {
	c.mu.Lock()
	b := c.browser
	c.mu.Unlock()
	if b == nil {
		return ErrNotStarted
	}
	cookies, err := b.GetCookies()
	if err != nil {
		return fmt.Errorf("read browser cookies: %w", err)
	}
	return writeState(c.authPath, cookies)
}
