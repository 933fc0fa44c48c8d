package content

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/okian/trainingbot/internal/domain/model"
)

var (
	frontMatterRe = regexp.MustCompile(`(?s)\A---[ \t]*\r?\n(.*?)\r?\n---[ \t]*(?:\r?\n|\z)`)
	headingRe     = regexp.MustCompile(`^\s*#+\s*(.*)$`)
	moduleTitleRe = regexp.MustCompile(`(?i)^(module|training|lesson)\s*:\s*(.+)$`)
	topicLineRe   = regexp.MustCompile(`(?i)^\s*topic\s*:\s*(.+)$`)
)

// frontMatter holds the defaults a Markdown module file applies to each of
// its sections.
type frontMatter struct {
	Location   string   `yaml:"location"`
	Instructor string   `yaml:"instructor"`
	Duration   string   `yaml:"duration"`
	Date       string   `yaml:"date"`
	Time       string   `yaml:"time"`
	Topic      string   `yaml:"topic"`
	Types      []string `yaml:"types"`
}

func (fm frontMatter) topic() string {
	if fm.Topic != "" {
		return fm.Topic
	}
	if len(fm.Types) > 0 {
		return fm.Types[0]
	}
	return ""
}

type section struct {
	title string
	line  int
	body  []string
}

// loadMarkdown reads a file whose sections are headed "Module: <title>",
// "Training: <title>" or "Lesson: <title>". A section body may start with a
// "Topic: <label>" line overriding the front matter topic.
func (l *FileLoader) loadMarkdown(path string) ([]model.TrainingModule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, unavailable(path, err)
	}
	text := string(data)

	var fm frontMatter
	offset := 0
	if loc := frontMatterRe.FindStringSubmatchIndex(text); loc != nil {
		if err := yaml.Unmarshal([]byte(text[loc[2]:loc[3]]), &fm); err != nil {
			return nil, malformed(path, "front matter: %v", err)
		}
		offset = strings.Count(text[:loc[1]], "\n")
		text = text[loc[1]:]
	}

	var sections []section
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := sc.Text()
		if h := headingRe.FindStringSubmatch(line); h != nil {
			if t := moduleTitleRe.FindStringSubmatch(strings.TrimSpace(h[1])); t != nil {
				sections = append(sections, section{title: strings.TrimSpace(t[2]), line: offset + n})
				continue
			}
		}
		if len(sections) > 0 {
			cur := &sections[len(sections)-1]
			cur.body = append(cur.body, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, unavailable(path, err)
	}

	out := make([]model.TrainingModule, 0, len(sections))
	for _, s := range sections {
		topic := fm.topic()
		body := s.body
		for len(body) > 0 && strings.TrimSpace(body[0]) == "" {
			body = body[1:]
		}
		if len(body) > 0 {
			if m := topicLineRe.FindStringSubmatch(body[0]); m != nil {
				topic = strings.TrimSpace(m[1])
				body = body[1:]
			}
		}
		if topic == "" {
			topic = s.title
		}

		m, err := l.finish(model.TrainingModule{
			Title:       s.title,
			Topic:       topic,
			Location:    fm.Location,
			Description: strings.TrimSpace(strings.Join(body, "\n")),
			Duration:    fm.Duration,
			Date:        fm.Date,
			Time:        fm.Time,
			Instructor:  fm.Instructor,
			Source:      fmt.Sprintf("%s:%d", path, s.line),
		})
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
