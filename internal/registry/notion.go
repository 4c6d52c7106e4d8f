package registry

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// LoadFromNotion queries a Notion database of synonym mappings and returns
// an indexed table. Expected schema: Term (title), Synonyms (rich_text,
// newline-separated), Status (status, only "Active" rows are loaded),
// Version (rich_text, same on every row of a published version).
func LoadFromNotion(ctx context.Context, token, dbID string) (*SynonymTable, error) {
	client := notionapi.NewClient(notionapi.Token(token))

	filter := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Status",
			Status: &notionapi.StatusFilterCondition{
				Equals: "Active",
			},
		},
	}

	pages, err := queryAll(ctx, client, dbID, filter)
	if err != nil {
		return nil, eris.Wrap(err, "registry: query synonym database")
	}

	version := ""
	terms := make(map[string][]string, len(pages))
	for _, p := range pages {
		term, syns, v, parseErr := parseSynonymPage(p)
		if parseErr != nil {
			zap.L().Warn("registry: skipping malformed synonym page",
				zap.String("page_id", string(p.ID)),
				zap.Error(parseErr),
			)
			continue
		}
		terms[term] = syns
		if v != "" {
			version = v
		}
	}

	if len(terms) == 0 {
		return nil, eris.New("registry: synonym database returned no active terms")
	}
	if version == "" {
		version = "notion-unversioned"
	}

	t := NewSynonymTable(version, terms)
	zap.L().Info("registry: synonym table loaded from notion",
		zap.String("version", version),
		zap.Int("terms", len(terms)),
	)
	return t, nil
}

// queryAll fetches all pages from a Notion database, handling pagination.
func queryAll(ctx context.Context, client *notionapi.Client, dbID string, filter *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	var all []notionapi.Page

	req := &notionapi.DatabaseQueryRequest{}
	if filter != nil {
		req.Filter = filter.Filter
		req.Sorts = filter.Sorts
		req.PageSize = filter.PageSize
	}

	for {
		resp, err := client.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
		if err != nil {
			return nil, eris.Wrap(err, "registry: query page")
		}
		all = append(all, resp.Results...)
		if !resp.HasMore {
			break
		}
		req.StartCursor = resp.NextCursor
	}

	return all, nil
}

func parseSynonymPage(p notionapi.Page) (term string, syns []string, version string, err error) {
	if prop, ok := p.Properties["Term"]; ok {
		if tp, ok := prop.(*notionapi.TitleProperty); ok {
			term = plainText(tp.Title)
		}
	}
	if term == "" {
		return "", nil, "", eris.New("missing Term property")
	}

	if prop, ok := p.Properties["Synonyms"]; ok {
		if rtp, ok := prop.(*notionapi.RichTextProperty); ok {
			syns = splitLines(plainText(rtp.RichText))
		}
	}

	if prop, ok := p.Properties["Version"]; ok {
		if rtp, ok := prop.(*notionapi.RichTextProperty); ok {
			version = plainText(rtp.RichText)
		}
	}

	return term, syns, version, nil
}

func plainText(rich []notionapi.RichText) string {
	out := ""
	for _, rt := range rich {
		out += rt.PlainText
	}
	return out
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
