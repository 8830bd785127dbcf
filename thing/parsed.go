package thing

import (
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

// TextCodeInvalidRecord marks upstream records rejected before persistence.
const TextCodeInvalidRecord = "INVALID_RECORD"

var numericID = regexp.MustCompile(`^[0-9]+$`)

// Parsed is a record as delivered by the upstream gateway. Scalars keep the
// loose string form they arrive in and are converted when stored.
type Parsed struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	YearPublished string   `json:"year_published"`
	MinPlayers    string   `json:"min_players"`
	MaxPlayers    string   `json:"max_players"`
	PlayingTime   string   `json:"playing_time"`
	MinPlaytime   string   `json:"min_playtime"`
	MaxPlaytime   string   `json:"max_playtime"`
	MinAge        string   `json:"min_age"`
	AverageRating string   `json:"average_rating"`
	BayesAverage  string   `json:"bayes_average"`
	UsersRated    string   `json:"users_rated"`
	Rank          string   `json:"rank"`
	AverageWeight string   `json:"average_weight"`
	Description   string   `json:"description"`
	Thumbnail     string   `json:"thumbnail"`
	Image         string   `json:"image"`
	Mechanics     []string `json:"mechanics"`
}

// Validate checks the fields storage cannot do without.
// The returned error is a go-errors validation error with field details.
func (p Parsed) Validate() error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.ID, validation.Required, validation.Match(numericID)),
		validation.Field(&p.Name, validation.Required, validation.Length(1, 512)),
		validation.Field(&p.Mechanics, validation.Each(validation.Required, validation.Length(1, 255))),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid thing record").
			WithTextCode(TextCodeInvalidRecord).
			WithMetadata(map[string]any{"id": p.ID})
	}
	return nil
}

// ToThing converts the loose upstream values into a storable Thing.
// Unparseable numbers become nil; mechanics are not attached here.
func (p Parsed) ToThing() *Thing {
	name := strings.TrimSpace(p.Name)
	return &Thing{
		ID:            strings.TrimSpace(p.ID),
		Name:          name,
		YearPublished: OptionalInt(p.YearPublished),
		MinPlayers:    OptionalInt(p.MinPlayers),
		MaxPlayers:    OptionalInt(p.MaxPlayers),
		PlayingTime:   OptionalInt(p.PlayingTime),
		MinPlaytime:   OptionalInt(p.MinPlaytime),
		MaxPlaytime:   OptionalInt(p.MaxPlaytime),
		MinAge:        OptionalInt(p.MinAge),
		AverageRating: OptionalFloat(p.AverageRating),
		BayesAverage:  OptionalFloat(p.BayesAverage),
		UsersRated:    OptionalInt(p.UsersRated),
		Rank:          positiveInt(p.Rank),
		AverageWeight: OptionalFloat(p.AverageWeight),
		Description:   p.Description,
		Thumbnail:     strings.TrimSpace(p.Thumbnail),
		Image:         strings.TrimSpace(p.Image),

		NameFolded:        Fold(name),
		DescriptionFolded: Fold(p.Description),
	}
}

// BGG reports unranked games as "Not Ranked" or 0.
func positiveInt(v string) *int {
	n := OptionalInt(v)
	if n == nil || *n <= 0 {
		return nil
	}
	return n
}
