// Package pdf 提供了一个基于 Apache Tika 服务器的 PDF 逐页文本抽取客户端。
package pdf

import (
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"revisely-go/internal/config"
	"revisely-go/internal/model"
)

// Client 是 Tika 服务器的客户端。
type Client struct {
	serverURL string
}

// NewClient 创建一个新的 Tika 客户端实例。
func NewClient(cfg config.TikaConfig) *Client {
	return &Client{serverURL: cfg.ServerURL}
}

// Tika 的 XHTML 输出用 <div class="page"> 包裹 PDF 的每一页，
// 据此切分即可得到保序的页文本序列。
var (
	rePageDiv = regexp.MustCompile(`<div[^>]*class="page"[^>]*>`)
	reTag     = regexp.MustCompile(`<[^>]+>`)
)

// ExtractPages 将 PDF 内容交给 Tika 抽取，按页返回纯文本，页码从 1 开始。
func (c *Client) ExtractPages(fileReader io.Reader) ([]model.PageText, error) {
	req, err := http.NewRequest("PUT", c.serverURL+"/tika", fileReader)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	req.Header.Set("Accept", "text/html")
	req.Header.Set("Content-Type", "application/pdf")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("调用 Tika 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode, string(body))
	}

	xhtml, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取 Tika 响应失败: %w", err)
	}

	return SplitPages(string(xhtml)), nil
}

// SplitPages 将 Tika 的 XHTML 输出按页 div 切分为纯文本页序列。
// 不含任何页 div 的文档整体作为第 1 页返回。
func SplitPages(xhtml string) []model.PageText {
	locs := rePageDiv.FindAllStringIndex(xhtml, -1)
	if len(locs) == 0 {
		text := stripTags(xhtml)
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []model.PageText{{PageNo: 1, Text: text}}
	}

	pages := make([]model.PageText, 0, len(locs))
	for i, loc := range locs {
		start := loc[1]
		end := len(xhtml)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		pages = append(pages, model.PageText{
			PageNo: i + 1,
			Text:   stripTags(xhtml[start:end]),
		})
	}
	return pages
}

// stripTags 去除 XHTML 标记并还原常见实体。
func stripTags(fragment string) string {
	text := reTag.ReplaceAllString(fragment, "")
	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	return strings.TrimSpace(replacer.Replace(text))
}
