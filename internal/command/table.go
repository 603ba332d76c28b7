// Package command 把识别出的文本映射为设备控制 URL 并发送。
package command

import (
	"fmt"
	"strings"

	"github.com/iabetor/pivoice/internal/config"
)

// Command 是一条语音指令：触发短语与对应的设备 URL。
type Command struct {
	Phrase string
	URL    string
}

// Table 是有序指令表，匹配时按顺序取第一个命中的短语。
type Table []Command

// DefaultTable 返回内置的 LED 控制指令表。
// 更具体的短语排在前面，"turn off" 兜底放在最后。
func DefaultTable(baseURL string) Table {
	baseURL = strings.TrimSuffix(baseURL, "/")
	entry := func(phrase, path string) Command {
		return Command{Phrase: phrase, URL: baseURL + path}
	}

	var t Table
	words := []string{"one", "two", "three", "four"}
	for i, word := range words {
		n := i + 1
		on := fmt.Sprintf("/LED%d=HIGH", n)
		off := fmt.Sprintf("/LED%d=LOW", n)
		t = append(t,
			entry(fmt.Sprintf("turn on led %d", n), on),
			entry(fmt.Sprintf("turn off led %d", n), off),
			entry("turn on led "+word, on),
			entry("turn off led "+word, off),
		)
	}
	return append(t,
		entry("turn off all", "/LED=OFF"),
		entry("turn off", "/LED=OFF"),
	)
}

// FromConfig 根据配置构造指令表；配置中没有指令时使用内置表。
func FromConfig(cfg config.CommandsConfig) Table {
	if len(cfg.Table) == 0 {
		return DefaultTable(cfg.BaseURL)
	}
	t := make(Table, 0, len(cfg.Table))
	for _, c := range cfg.Table {
		url := strings.TrimSpace(c.URL)
		// 相对路径拼接到 base_url 之后
		if strings.HasPrefix(url, "/") {
			url = cfg.BaseURL + url
		}
		t = append(t, Command{Phrase: strings.ToLower(strings.TrimSpace(c.Phrase)), URL: url})
	}
	return t
}

// Match 返回第一个被文本包含的指令短语（不区分大小写）。
func (t Table) Match(transcript string) (Command, bool) {
	text := strings.ToLower(transcript)
	for _, c := range t {
		if strings.Contains(text, strings.ToLower(c.Phrase)) {
			return c, true
		}
	}
	return Command{}, false
}

// Phrases 按顺序返回全部短语。
func (t Table) Phrases() []string {
	out := make([]string, len(t))
	for i, c := range t {
		out[i] = c.Phrase
	}
	return out
}
