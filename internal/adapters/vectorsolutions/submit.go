package vectorsolutions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/okian/trainingbot/internal/domain/form"
	"github.com/okian/trainingbot/internal/domain/model"
	"github.com/okian/trainingbot/internal/domain/roster"
	"github.com/okian/trainingbot/pkg/logger"
)

const (
	searchSettle  = 400 * time.Millisecond
	optionalWait  = 3 * time.Second
	artifactPerm  = 0o750
	screenshotExt = ".png"
)

// Submit fills the form for a and submits it. Failures wrap
// model.ErrSubmissionRejected or model.ErrTransport.
func (c *Client) Submit(ctx context.Context, a model.Assignment) error { //nolint:gocritic // hugeParam: assignments travel by value
	vals, err := form.Build(a)
	if err != nil {
		return rejected(err, "module %s", a.Module.ID)
	}

	page, err := c.newPage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = page.Close() }()

	err = c.submit(ctx, page, a, vals)
	if err != nil {
		c.screenshot(ctx, page, a, "failed")
	}
	return err
}

func (c *Client) submit(ctx context.Context, page *rod.Page, a model.Assignment, v form.Values) error { //nolint:gocritic // hugeParam: assignments travel by value
	p := page.Timeout(c.navTimeout)
	if err := p.Navigate(c.formURL); err != nil {
		return transport("open form", err)
	}
	if err := p.WaitLoad(); err != nil {
		return transport("load form", err)
	}
	if err := c.checkSession(page); err != nil {
		return err
	}

	if err := c.fillField(p, c.sel.Location, v.Location); err != nil {
		return classify("location", err)
	}
	if err := c.checkTopic(p, v.Topic); err != nil {
		return classify("topic", err)
	}
	if err := c.fillField(p, c.sel.Description, v.Description); err != nil {
		return classify("description", err)
	}
	if err := c.fillField(p, c.sel.Duration, v.Hours); err != nil {
		return classify("duration", err)
	}
	if err := c.fillField(p, c.sel.Date, v.Date); err != nil {
		return classify("date", err)
	}
	if err := c.selectTime(p, v.Time); err != nil {
		return classify("time", err)
	}
	if v.Instructor != "" {
		if err := c.fillField(p, c.sel.Instructor, v.Instructor); err != nil {
			return classify("instructor", err)
		}
	}

	if err := c.addParticipant(ctx, page, v.Participant); err != nil {
		return classify("participants", err)
	}

	c.screenshot(ctx, page, a, "before-submit")
	before, err := c.snapshot(page)
	if err != nil {
		return err
	}
	if err := clickText(p, c.sel.SubmitText); err != nil {
		return classify("submit", err)
	}
	err = c.confirm(ctx, page, before)
	c.screenshot(ctx, page, a, "after-submit")
	return err
}

// checkSession rejects when the form redirected to the login page.
func (c *Client) checkSession(page *rod.Page) error {
	info, err := page.Info()
	if err != nil {
		return transport("page info", err)
	}
	if c.loginRe != nil && c.loginRe.MatchString(info.URL) {
		return rejected(ErrSessionExpired, "redirected to %s", info.URL)
	}
	return nil
}

func (c *Client) fillField(p *rod.Page, selector, value string) error {
	el, err := p.Element(selector)
	if err != nil {
		return transport("find "+selector, err)
	}
	return fill(el, value)
}

func fill(el *rod.Element, value string) error {
	if err := el.SelectAllText(); err != nil {
		return err
	}
	return el.Input(value)
}

// checkTopic ticks the checkbox whose label reads topic.
func (c *Client) checkTopic(p *rod.Page, topic string) error {
	label, err := p.Timeout(optionalWait).ElementR(c.sel.TopicLabel, jsRegex(topicPattern(topic)))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return rejected(ErrTopicNotFound, "%q", topic)
		}
		return transport("find topic", err)
	}

	box, err := checkboxFor(p, label)
	if err != nil {
		return rejected(ErrTopicNotFound, "%q has no checkbox", topic)
	}
	checked, err := box.Property("checked")
	if err != nil {
		return transport("read checkbox", err)
	}
	if checked.Bool() {
		return nil
	}
	return box.Click(proto.InputMouseButtonLeft, 1)
}

func checkboxFor(p *rod.Page, label *rod.Element) (*rod.Element, error) {
	if id, err := label.Attribute("for"); err == nil && id != nil && *id != "" {
		if has, el, err := p.Has(`input[type="checkbox"][id="` + *id + `"]`); err == nil && has {
			return el, nil
		}
	}
	if has, el, err := label.Has(`input[type="checkbox"]`); err == nil && has {
		return el, nil
	}
	next, err := label.Next()
	if err != nil {
		return nil, err
	}
	if ok, err := next.Matches(`input[type="checkbox"]`); err == nil && ok {
		return next, nil
	}
	return nil, &rod.ElementNotFoundError{}
}

// selectTime picks the start time option closest to want.
func (c *Client) selectTime(p *rod.Page, want string) error {
	sel, err := p.Element(c.sel.Time)
	if err != nil {
		return transport("find time", err)
	}
	opts, err := sel.Elements("option")
	if err != nil {
		return transport("list time options", err)
	}
	labels := make([]string, 0, len(opts))
	for _, o := range opts {
		t, err := o.Text()
		if err != nil {
			return transport("read time option", err)
		}
		labels = append(labels, t)
	}
	best := form.NearestOption(want, labels)
	if best == "" {
		return rejected(form.ErrInvalidValue, "no start time option near %s", want)
	}
	return sel.Select([]string{`^\s*` + regexp.QuoteMeta(best) + `\s*$`}, true, rod.SelectorTypeRegex)
}

// addParticipant opens the user picker, finds the participant by
// "Last, First" and adds them to the record.
func (c *Client) addParticipant(ctx context.Context, page *rod.Page, name string) error {
	p := page.Timeout(c.navTimeout)
	if err := clickText(p, c.sel.AddUsersText); err != nil {
		return err
	}
	search, err := p.Element(c.sel.Search)
	if err != nil {
		return transport("find participant search", err)
	}
	if err := fill(search, name); err != nil {
		return transport("type participant", err)
	}
	_ = page.WaitStable(searchSettle)

	candidates, err := page.Elements(c.sel.Candidates)
	if err != nil {
		return transport("list participants", err)
	}
	var match *rod.Element
	for _, el := range candidates {
		text, err := el.Text()
		if err != nil {
			continue
		}
		if roster.MatchesName(text, name) {
			match = el
			break
		}
	}
	if match == nil {
		return rejected(ErrParticipantNotFound, "%q", name)
	}
	if err := match.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return transport("pick participant", err)
	}
	if err := clickText(page.Timeout(optionalWait), c.sel.AddText); err != nil {
		c.logger.Debug(ctx, "no separate add button", logger.Error(err))
	}
	if err := clickText(p, c.sel.ContinueText); err != nil {
		return err
	}
	_ = p.WaitLoad()
	return nil
}

// preSubmit is the page state right before Submit is pressed.
type preSubmit struct {
	url  string
	cues int
}

// cueCountJS counts success cue matches in the page text.
const cueCountJS = `(cue) => ((document.body && document.body.innerText || "").match(new RegExp(cue, "gi")) || []).length`

// successJS yields the body once a success cue shows and the submit step is
// over: the URL changed, a new cue appeared or no submit button is visible.
const successJS = `(prevURL, baseline, cue, submit) => {
	const body = document.body;
	if (!body) return null;
	const hits = (body.innerText.match(new RegExp(cue, "gi")) || []).length;
	if (hits === 0) return null;
	if (location.href !== prevURL || hits > baseline) return body;
	const re = new RegExp(submit, "i");
	const pending = [...document.querySelectorAll('button, a, [role="button"], input[type="submit"], input[type="button"]')]
		.some(b => b.offsetParent !== null && re.test(b.innerText || b.value || ""));
	return pending ? null : body;
}`

func (c *Client) snapshot(page *rod.Page) (preSubmit, error) {
	info, err := page.Info()
	if err != nil {
		return preSubmit{}, transport("page info", err)
	}
	res, err := page.Eval(cueCountJS, c.sel.SuccessText)
	if err != nil {
		return preSubmit{}, transport("count success cues", err)
	}
	return preSubmit{url: info.URL, cues: res.Value.Int()}, nil
}

// confirm waits for either a validation message or a success cue that was
// not already on the form before submitting.
func (c *Client) confirm(ctx context.Context, page *rod.Page, before preSubmit) error {
	var problem string
	_, err := page.Timeout(c.navTimeout).Race().
		ElementR(c.sel.Validation, `/\S/`).
		Handle(func(el *rod.Element) error {
			problem, _ = el.Text()
			return ErrValidation
		}).
		ElementByJS(rod.Eval(successJS, before.url, before.cues, c.sel.SuccessText, c.sel.SubmitText)).
		Do()

	switch {
	case err == nil:
		if err := c.checkSession(page); err != nil {
			return err
		}
		return nil
	case errors.Is(err, ErrValidation):
		return rejected(ErrValidation, "%s", strings.TrimSpace(problem))
	case ctx.Err() != nil:
		return transport("confirm", ctx.Err())
	case errors.Is(err, context.DeadlineExceeded):
		return rejected(ErrNoSuccessCue, "waited %s", c.navTimeout)
	default:
		return transport("confirm", err)
	}
}

// clickText clicks the first button-like element whose text matches
// pattern. Input buttons are matched by their value.
func clickText(p *rod.Page, pattern string) error {
	el, err := p.Race().
		ElementR(`button, a, [role="button"]`, jsRegex(pattern)).
		ElementR(`input[type="submit"], input[type="button"]`, jsRegex(pattern)).
		Do()
	if err != nil {
		return transport("find button "+pattern, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return transport("click "+pattern, err)
	}
	return nil
}

func (c *Client) screenshot(ctx context.Context, page *rod.Page, a model.Assignment, step string) { //nolint:gocritic // hugeParam: assignments travel by value
	if c.artifactDir == "" {
		return
	}
	img, err := page.Screenshot(true, nil)
	if err != nil {
		c.logger.Debug(ctx, "screenshot failed", logger.String("step", step), logger.Error(err))
		return
	}
	path := artifactPath(c.artifactDir, a, step)
	if err := os.MkdirAll(filepath.Dir(path), artifactPerm); err != nil {
		c.logger.Warn(ctx, "artifact dir", logger.Error(err))
		return
	}
	if err := os.WriteFile(path, img, stateFilePerm); err != nil {
		c.logger.Warn(ctx, "write screenshot", logger.String("path", path), logger.Error(err))
	}
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// artifactPath is <dir>/<run id>/<person>-<assignment>-<step>.png.
func artifactPath(dir string, a model.Assignment, step string) string { //nolint:gocritic // hugeParam: assignments travel by value
	run := a.RunID
	if run == "" {
		run = "adhoc"
	}
	person := strings.Trim(unsafeChars.ReplaceAllString(a.Personnel.Name, "_"), "_")
	name := fmt.Sprintf("%s-%s-%s%s", person, a.ID, step, screenshotExt)
	return filepath.Join(dir, unsafeChars.ReplaceAllString(run, "_"), name)
}
