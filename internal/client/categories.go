package client

import (
	"context"
	"fmt"

	"github.com/danmuck/amulectl/internal/protocol/schema"
	"github.com/danmuck/amulectl/internal/protocol/tlv"
)

type Category struct {
	ID       uint32
	Title    string
	Path     string
	Comment  string
	Color    uint32 // 0xRRGGBB
	Priority uint8
}

// Categories reads the category block of the daemon preferences.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	resp, err := c.send(ctx, schema.OpGetPreferences,
		tlv.New(schema.TagSelectPrefs, tlv.TypeUint32, schema.PrefsCategories))
	if err != nil {
		return nil, err
	}
	if len(resp.Tags) == 0 || resp.Tags[0].ID != schema.TagPrefsCategories {
		return nil, nil
	}
	var cats []Category
	for i, t := range resp.Tags[0].Children {
		if t.ID != schema.TagCategory {
			continue
		}
		id, ok := t.Uint()
		if !ok {
			id = uint64(i)
		}
		cats = append(cats, Category{
			ID:       uint32(id),
			Title:    childText(t, schema.TagCategoryTitle),
			Path:     childText(t, schema.TagCategoryPath),
			Comment:  childText(t, schema.TagCategoryComment),
			Color:    uint32(childUint(t, schema.TagCategoryColor)),
			Priority: uint8(childUint(t, schema.TagCategoryPrio)),
		})
	}
	return cats, nil
}

// CreateCategory adds a category and returns the id the daemon assigned.
// cat.ID is ignored.
func (c *Client) CreateCategory(ctx context.Context, cat Category) (uint32, error) {
	resp, err := c.send(ctx, schema.OpCreateCategory, tlv.Container(schema.TagCategory, categoryFields(cat)...))
	if err != nil {
		return 0, err
	}
	if t, ok := tlv.Find(resp.Tags, schema.TagCategory); ok {
		if id, ok := t.Uint(); ok {
			return uint32(id), nil
		}
	}
	if resp.Opcode == schema.OpNoop {
		return 0, nil
	}
	return 0, fmt.Errorf("%w: create category %q replied %s", ErrRejected, cat.Title, c.names.OpcodeName(resp.Opcode))
}

func (c *Client) UpdateCategory(ctx context.Context, cat Category) error {
	return c.expect(ctx, schema.OpNoop, schema.OpUpdateCategory,
		tlv.New(schema.TagCategory, tlv.TypeUint32, cat.ID, categoryFields(cat)...))
}

func (c *Client) DeleteCategory(ctx context.Context, id uint32) error {
	return c.expect(ctx, schema.OpNoop, schema.OpDeleteCategory,
		tlv.New(schema.TagCategory, tlv.TypeUint32, id))
}

func categoryFields(cat Category) []tlv.Tag {
	return []tlv.Tag{
		tlv.New(schema.TagCategoryTitle, tlv.TypeString, cat.Title),
		tlv.New(schema.TagCategoryPath, tlv.TypeString, cat.Path),
		tlv.New(schema.TagCategoryComment, tlv.TypeString, cat.Comment),
		tlv.New(schema.TagCategoryColor, tlv.TypeUint32, cat.Color),
		tlv.New(schema.TagCategoryPrio, tlv.TypeUint8, cat.Priority),
	}
}
