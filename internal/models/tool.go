package models

import (
	"time"

	"gorm.io/datatypes"
)

// Tool identifiers shipped with the default catalog.
const (
	ToolTagGenerator         = "tag-generator"
	ToolKeywordResearch      = "keyword-research"
	ToolDescriptionGenerator = "description-generator"
	ToolTitleAnalyzer        = "title-analyzer"
	ToolVideoData            = "video-data"
)

// Tool is a metered feature and its free-tier policy.
type Tool struct {
	ID string `gorm:"primaryKey;type:varchar(64)"` // Tool identifier, e.g. tag-generator.

	Name         string         `gorm:"type:varchar(255);not null"`       // Display name.
	FreeLimit    int            `gorm:"not null;default:0"`               // Uses allowed for non-privileged subjects.
	RequiresAuth bool           `gorm:"not null;default:false"`           // Anonymous subjects are rejected.
	IsEnabled    bool           `gorm:"not null;default:true"`            // Disabled tools behave as unknown.
	SortOrder    int            `gorm:"not null;default:0"`               // Display ordering weight.
	Meta         datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"` // Free-form UI metadata.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// DefaultTools returns the seed catalog.
func DefaultTools() []Tool {
	return []Tool{
		{ID: ToolTagGenerator, Name: "Tag Generator", FreeLimit: 5, IsEnabled: true, SortOrder: 10},
		{ID: ToolKeywordResearch, Name: "Keyword Research", FreeLimit: 3, RequiresAuth: true, IsEnabled: true, SortOrder: 20},
		{ID: ToolDescriptionGenerator, Name: "Description Generator", FreeLimit: 3, RequiresAuth: true, IsEnabled: true, SortOrder: 30},
		{ID: ToolTitleAnalyzer, Name: "Title Analyzer", FreeLimit: 2, IsEnabled: true, SortOrder: 40},
		{ID: ToolVideoData, Name: "Video Data", FreeLimit: 2, IsEnabled: true, SortOrder: 50},
	}
}
