package examples

import (
	"bufio"
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	questionRe = regexp.MustCompile(`(?i)^\s*Q:\s*["']?(.+?)["']?\s*$`)
	sqlLineRe  = regexp.MustCompile(`(?i)^\s*SQL\s*:\s*$`)
	fenceRe    = regexp.MustCompile("^\\s*```")
	fenceEndRe = regexp.MustCompile("^\\s*```\\s*$")
)

// ParseMarkdown extracts Q:/SQL: pairs. A question without a following
// SQL: line is dropped.
func ParseMarkdown(text string) Set {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	var out Set

	for i := 0; i < len(lines); i++ {
		m := questionRe.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		question := strings.TrimSpace(m[1])

		j := i + 1
		for j < len(lines) && !sqlLineRe.MatchString(lines[j]) {
			j++
		}
		if j >= len(lines) {
			continue
		}

		k := j + 1
		var body []string
		if k < len(lines) && fenceRe.MatchString(lines[k]) {
			for k++; k < len(lines) && !fenceEndRe.MatchString(lines[k]); k++ {
				body = append(body, lines[k])
			}
		} else {
			for ; k < len(lines) && strings.TrimSpace(lines[k]) != ""; k++ {
				body = append(body, lines[k])
			}
		}
		if sql := strings.TrimSpace(strings.Join(body, "\n")); sql != "" {
			out = append(out, Example{Question: question, SQL: sql})
		}
		i = k
	}
	return out
}

// ParseYAML decodes a list of {question, sql} mappings. Entries missing
// either field are skipped.
func ParseYAML(data []byte) (Set, error) {
	var raw []Example
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return keepComplete(raw), nil
}

type knowledgeLine struct {
	QuestionRU string `json:"question_ru"`
	QuestionEN string `json:"question_en"`
	QuestionHE string `json:"question_he"`
	SQL        string `json:"sql"`
}

// ParseJSONL reads harvested pairs, one JSON object per line. The Russian
// question is preferred, then English, then Hebrew. Unreadable lines are
// skipped.
func ParseJSONL(data []byte) (Set, error) {
	var raw []Example
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var kl knowledgeLine
		if err := json.Unmarshal(line, &kl); err != nil {
			continue
		}
		q := kl.QuestionRU
		if q == "" {
			q = kl.QuestionEN
		}
		if q == "" {
			q = kl.QuestionHE
		}
		raw = append(raw, Example{Question: q, SQL: kl.SQL})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return keepComplete(raw), nil
}

func keepComplete(in []Example) Set {
	out := make(Set, 0, len(in))
	for _, ex := range in {
		ex.Question, ex.SQL = strings.TrimSpace(ex.Question), strings.TrimSpace(ex.SQL)
		if ex.Question != "" && ex.SQL != "" {
			out = append(out, ex)
		}
	}
	return out
}
