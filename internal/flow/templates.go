package flow

import "strings"

// TemplateOptions carries per-render flags into a template's variable builder.
type TemplateOptions struct {
	// AsPreview requests unpublished revisions of the content node.
	AsPreview bool
}

// Template pairs a content query with a variable builder. Variables may be nil
// for queries that take none.
type Template struct {
	Name      string
	Query     string
	Variables func(node *SeedNode, opts TemplateOptions) map[string]any
}

// Registry maps template names to templates. Besides explicit names assigned
// to content in the backend, three well-known keys act as fallbacks: "page"
// for page-type content, "archive" for term nodes, and "single" for every
// other content node.
type Registry map[string]*Template

// Resolve picks the template for a seed node. Explicit template assignments
// win over type-based fallbacks. Returns nil when the node is nil or no
// registered template matches.
func (r Registry) Resolve(node *SeedNode) *Template {
	if node == nil {
		return nil
	}
	if name := strings.ToLower(node.Template.TemplateName); name != "" && name != "default" {
		if t, ok := r[name]; ok {
			return t
		}
	}
	if node.IsTermNode {
		return r["archive"]
	}
	if strings.EqualFold(node.ContentType.Node.Name, "page") {
		return r["page"]
	}
	if node.IsContentNode {
		return r["single"]
	}
	return nil
}
