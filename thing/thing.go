package thing

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CurrentSchemaVersion is the revision of the extraction logic that populates
// optional fields. Version 2 added mechanic associations.
const CurrentSchemaVersion = 2

// Thing is one cached game record.
type Thing struct {
	bun.BaseModel `bun:"table:things,alias:t"`

	ID            string   `bun:"id,pk" json:"id"`
	Name          string   `bun:"name,notnull" json:"name"`
	YearPublished *int     `bun:"year_published" json:"year_published,omitempty"`
	MinPlayers    *int     `bun:"min_players" json:"min_players,omitempty"`
	MaxPlayers    *int     `bun:"max_players" json:"max_players,omitempty"`
	PlayingTime   *int     `bun:"playing_time" json:"playing_time,omitempty"`
	MinPlaytime   *int     `bun:"min_playtime" json:"min_playtime,omitempty"`
	MaxPlaytime   *int     `bun:"max_playtime" json:"max_playtime,omitempty"`
	MinAge        *int     `bun:"min_age" json:"min_age,omitempty"`
	AverageRating *float64 `bun:"average_rating" json:"average_rating,omitempty"`
	BayesAverage  *float64 `bun:"bayes_average" json:"bayes_average,omitempty"`
	UsersRated    *int     `bun:"users_rated" json:"users_rated,omitempty"`
	Rank          *int     `bun:"board_rank" json:"rank,omitempty"`
	AverageWeight *float64 `bun:"average_weight" json:"average_weight,omitempty"`
	Description   string   `bun:"description,type:text" json:"description,omitempty"`
	Thumbnail     string   `bun:"thumbnail" json:"thumbnail,omitempty"`
	Image         string   `bun:"image" json:"image,omitempty"`

	// case folded copies of Name and Description for search and ordering
	NameFolded        string `bun:"name_folded,notnull" json:"-"`
	DescriptionFolded string `bun:"description_folded,type:text,notnull" json:"-"`

	MechanicsChecksum string    `bun:"mechanics_checksum" json:"-"`
	SchemaVersion     int       `bun:"schema_version,notnull,default:0" json:"schema_version"`
	LastCached        time.Time `bun:"last_cached,nullzero" json:"last_cached,omitempty"`
	CachedSeq         int64     `bun:"cached_seq,notnull,default:0" json:"-"`

	Mechanics []*Mechanic `bun:"m2m:thing_mechanics,join:Thing=Mechanic" json:"mechanics"`
}

// MechanicNames returns the names of the attached mechanics in their stored order.
func (t *Thing) MechanicNames() []string {
	names := make([]string, 0, len(t.Mechanics))
	for _, m := range t.Mechanics {
		if m != nil {
			names = append(names, m.Name)
		}
	}
	return names
}

// Mechanic is a named category attachable to many things.
type Mechanic struct {
	bun.BaseModel `bun:"table:mechanics,alias:m"`

	ID   uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Name string    `bun:"name,notnull,unique" json:"name"`
	Slug string    `bun:"slug,notnull,unique" json:"slug"`
}

// ThingMechanic is the association row between a thing and a mechanic.
type ThingMechanic struct {
	bun.BaseModel `bun:"table:thing_mechanics,alias:tm"`

	ThingID    string    `bun:"thing_id,pk"`
	Thing      *Thing    `bun:"rel:belongs-to,join:thing_id=id"`
	MechanicID uuid.UUID `bun:"mechanic_id,pk,type:uuid"`
	Mechanic   *Mechanic `bun:"rel:belongs-to,join:mechanic_id=id"`
}
