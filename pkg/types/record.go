package types

import "time"

// Page is one response unit of the paginated projects endpoint.
type Page struct {
	Data  []Record  `json:"data"`
	Links PageLinks `json:"links"`
	Meta  PageMeta  `json:"meta"`
}

// PageLinks holds the pagination cursors. Next is empty on the last page.
type PageLinks struct {
	Self  string `json:"self,omitempty"`
	First string `json:"first,omitempty"`
	Prev  any    `json:"prev,omitempty"`
	Next  string `json:"next,omitempty"`
	Last  string `json:"last,omitempty"`
}

// PageMeta carries the per-state counts reported alongside each page.
type PageMeta struct {
	All       int `json:"all"`
	Published int `json:"published"`
	Draft     int `json:"draft"`
	Archived  int `json:"archived"`
	Hidden    int `json:"hidden"`
}

// Record is a single catalog item. ID is the stable identity; everything else
// may change between fetches.
type Record struct {
	ID            string        `json:"id"`
	Type          string        `json:"type"`
	Attributes    Attributes    `json:"attributes"`
	Relationships Relationships `json:"relationships"`
	Links         RecordLinks   `json:"links"`
}

// Attributes is the bag of mutable project attributes.
type Attributes struct {
	Name                  string   `json:"name"`
	Permalink             string   `json:"permalink"`
	State                 string   `json:"state"`
	VisibilityMode        string   `json:"visibility-mode"`
	PublishedAt           string   `json:"published-at,omitempty"`
	SurveyCount           int      `json:"survey-count"`
	BannerURL             string   `json:"banner-url,omitempty"`
	Description           string   `json:"description,omitempty"`
	ProjectTagList        []string `json:"project-tag-list"`
	CreatedAt             string   `json:"created-at,omitempty"`
	ArchivalReasonMessage string   `json:"archival-reason-message,omitempty"`
	ImageURL              string   `json:"image-url,omitempty"`
	ImageCaption          string   `json:"image-caption,omitempty"`
	ImageDescription      string   `json:"image-description,omitempty"`
	MetaDescription       string   `json:"meta-description,omitempty"`
	ParentID              *int     `json:"parent-id,omitempty"`
	Access                bool     `json:"access"`
}

type Relationships struct {
	Site struct {
		Data struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		} `json:"data"`
	} `json:"site"`
}

type RecordLinks struct {
	Self string `json:"self"`
}

// Token is the anonymous bearer credential required by the projects API.
type Token struct {
	Value      string    `json:"token"`
	Expiration time.Time `json:"expiration"`
}

// FreshAt reports whether the token is still usable at now, leaving at least
// skew before it expires.
func (t Token) FreshAt(now time.Time, skew time.Duration) bool {
	return t.Value != "" && t.Expiration.After(now.Add(skew))
}
