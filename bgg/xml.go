package bgg

import (
	"encoding/xml"
	"html"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-bgg-cache/thing"
)

const mechanicLinkType = "boardgamemechanic"

type valueAttr struct {
	Value string `xml:"value,attr"`
}

type thingItems struct {
	XMLName xml.Name    `xml:"items"`
	Items   []thingItem `xml:"item"`
}

type thingItem struct {
	ID            string      `xml:"id,attr"`
	Type          string      `xml:"type,attr"`
	Thumbnail     string      `xml:"thumbnail"`
	Image         string      `xml:"image"`
	Names         []itemName  `xml:"name"`
	Description   string      `xml:"description"`
	YearPublished valueAttr   `xml:"yearpublished"`
	MinPlayers    valueAttr   `xml:"minplayers"`
	MaxPlayers    valueAttr   `xml:"maxplayers"`
	PlayingTime   valueAttr   `xml:"playingtime"`
	MinPlaytime   valueAttr   `xml:"minplaytime"`
	MaxPlaytime   valueAttr   `xml:"maxplaytime"`
	MinAge        valueAttr   `xml:"minage"`
	Links         []itemLink  `xml:"link"`
	Ratings       itemRatings `xml:"statistics>ratings"`
}

type itemName struct {
	Type  string `xml:"type,attr"`
	Value string `xml:"value,attr"`
}

type itemLink struct {
	Type  string `xml:"type,attr"`
	ID    string `xml:"id,attr"`
	Value string `xml:"value,attr"`
}

type itemRatings struct {
	UsersRated    valueAttr  `xml:"usersrated"`
	Average       valueAttr  `xml:"average"`
	BayesAverage  valueAttr  `xml:"bayesaverage"`
	Ranks         []itemRank `xml:"ranks>rank"`
	AverageWeight valueAttr  `xml:"averageweight"`
}

type itemRank struct {
	Type  string `xml:"type,attr"`
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type collectionItems struct {
	XMLName    xml.Name         `xml:"items"`
	TotalItems string           `xml:"totalitems,attr"`
	Items      []collectionItem `xml:"item"`
}

type collectionItem struct {
	ObjectID string `xml:"objectid,attr"`
	Subtype  string `xml:"subtype,attr"`
}

type errorsBody struct {
	XMLName xml.Name `xml:"errors"`
	Errors  []struct {
		Message string `xml:"message"`
	} `xml:"error"`
}

// ParseThings decodes a thing response into parsed records, in document
// order.
func ParseThings(data []byte) ([]thing.Parsed, error) {
	var doc thingItems
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, decodeError(err, "thing")
	}

	out := make([]thing.Parsed, 0, len(doc.Items))
	for _, item := range doc.Items {
		out = append(out, item.toParsed())
	}
	return out, nil
}

// ParseCollection decodes a collection response into owned thing ids,
// de-duplicated and in document order.
func ParseCollection(data []byte) ([]string, error) {
	var doc collectionItems
	if err := xml.Unmarshal(data, &doc); err != nil {
		if msg := upstreamMessage(data); msg != "" {
			return nil, goerrors.New(msg, goerrors.CategoryBadInput).
				WithTextCode(TextCodeUpstreamRejected)
		}
		return nil, decodeError(err, "collection")
	}

	seen := make(map[string]struct{}, len(doc.Items))
	ids := make([]string, 0, len(doc.Items))
	for _, item := range doc.Items {
		id := strings.TrimSpace(item.ObjectID)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func (it thingItem) toParsed() thing.Parsed {
	p := thing.Parsed{
		ID:            strings.TrimSpace(it.ID),
		Name:          it.primaryName(),
		YearPublished: it.YearPublished.Value,
		MinPlayers:    it.MinPlayers.Value,
		MaxPlayers:    it.MaxPlayers.Value,
		PlayingTime:   it.PlayingTime.Value,
		MinPlaytime:   it.MinPlaytime.Value,
		MaxPlaytime:   it.MaxPlaytime.Value,
		MinAge:        it.MinAge.Value,
		AverageRating: it.Ratings.Average.Value,
		BayesAverage:  it.Ratings.BayesAverage.Value,
		UsersRated:    it.Ratings.UsersRated.Value,
		Rank:          it.boardGameRank(),
		AverageWeight: it.Ratings.AverageWeight.Value,
		// descriptions arrive with HTML entities escaped a second time
		Description: strings.TrimSpace(html.UnescapeString(it.Description)),
		Thumbnail:   strings.TrimSpace(it.Thumbnail),
		Image:       strings.TrimSpace(it.Image),
	}

	for _, link := range it.Links {
		if link.Type == mechanicLinkType {
			p.Mechanics = append(p.Mechanics, html.UnescapeString(link.Value))
		}
	}
	return p
}

func (it thingItem) primaryName() string {
	for _, n := range it.Names {
		if n.Type == "primary" {
			return html.UnescapeString(n.Value)
		}
	}
	if len(it.Names) > 0 {
		return html.UnescapeString(it.Names[0].Value)
	}
	return ""
}

func (it thingItem) boardGameRank() string {
	for _, r := range it.Ratings.Ranks {
		if r.Type == "subtype" && r.Name == "boardgame" {
			return r.Value
		}
	}
	return ""
}

func upstreamMessage(data []byte) string {
	var body errorsBody
	if err := xml.Unmarshal(data, &body); err != nil || len(body.Errors) == 0 {
		return ""
	}
	return strings.TrimSpace(body.Errors[0].Message)
}

func decodeError(err error, endpoint string) error {
	return goerrors.Wrap(err, goerrors.CategoryExternal, "decode bgg response").
		WithTextCode(TextCodeDecodeFailed).
		WithMetadata(map[string]any{"endpoint": endpoint})
}
