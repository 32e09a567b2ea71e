package flow

import (
	"encoding/json"
	"fmt"
)

// SeedQuery resolves a URI to the minimal routing facts the template registry
// needs. It runs once per page view before any template query.
const SeedQuery = `
query GetSeedNode($uri: String!) {
  node: nodeByUri(uri: $uri) {
    __typename
    id
    uri
    ... on DatabaseIdentifier {
      databaseId
    }
    ... on ContentType {
      name
      isFrontPage
      isPostsPage
    }
    ... on NodeWithTitle {
      title
    }
    ... on ContentNode {
      isContentNode
      slug
      contentType {
        node {
          name
        }
      }
      template {
        templateName
      }
    }
    ... on TermNode {
      isTermNode
      slug
      taxonomyName
    }
  }
}
`

// SeedNode is the routing information resolved for the current URI. A nil
// SeedNode means the URI matched no content.
type SeedNode struct {
	Typename      string      `json:"__typename"`
	ID            string      `json:"id"`
	URI           string      `json:"uri"`
	DatabaseID    json.Number `json:"databaseId"`
	Slug          string      `json:"slug"`
	Title         string      `json:"title"`
	TaxonomyName  string      `json:"taxonomyName"`
	IsFrontPage   bool        `json:"isFrontPage"`
	IsPostsPage   bool        `json:"isPostsPage"`
	IsTermNode    bool        `json:"isTermNode"`
	IsContentNode bool        `json:"isContentNode"`
	ContentType   struct {
		Node struct {
			Name string `json:"name"`
		} `json:"node"`
	} `json:"contentType"`
	Template struct {
		TemplateName string `json:"templateName"`
	} `json:"template"`
}

// ParseSeedNode extracts the seed node from a seed query result. A null node
// is not an error, it means nothing routes to the requested URI.
func ParseSeedNode(data json.RawMessage) (*SeedNode, error) {
	var result struct {
		Node *SeedNode `json:"node"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decoding seed node: %w", err)
	}
	return result.Node, nil
}
