package schema

import "strings"

// ComponentType is the closed set of section kinds the registry knows how to
// validate. Anything else parses to TypeUnknown, which never validates.
type ComponentType string

const (
	TypeUnknown ComponentType = ""
	TypeHero    ComponentType = "hero"
	TypeText    ComponentType = "text"
	TypeMenu    ComponentType = "menu"
	TypeGallery ComponentType = "gallery"
	TypeContact ComponentType = "contact"
	TypeHours   ComponentType = "hours"
)

func ParseComponentType(value string) ComponentType {
	switch ComponentType(strings.ToLower(strings.TrimSpace(value))) {
	case TypeHero:
		return TypeHero
	case TypeText:
		return TypeText
	case TypeMenu:
		return TypeMenu
	case TypeGallery:
		return TypeGallery
	case TypeContact:
		return TypeContact
	case TypeHours:
		return TypeHours
	default:
		return TypeUnknown
	}
}

// Types lists every known component type in a stable order.
func Types() []ComponentType {
	return []ComponentType{TypeHero, TypeText, TypeMenu, TypeGallery, TypeContact, TypeHours}
}

var (
	heroSpec = objectSpec{fields: []field{
		{name: "title", kind: kindString, required: true, maxLen: 200},
		{name: "subtitle", kind: kindString, maxLen: 500},
		{name: "imageUrl", kind: kindURL},
		{name: "ctaLabel", kind: kindString, maxLen: 80},
		{name: "ctaHref", kind: kindURL},
	}}

	textSpec = objectSpec{fields: []field{
		{name: "heading", kind: kindString, maxLen: 200},
		{name: "body", kind: kindString, required: true},
	}}

	menuItemSpec = objectSpec{fields: []field{
		{name: "name", kind: kindString, required: true, maxLen: 200},
		{name: "description", kind: kindString},
		{name: "price", kind: kindNumber},
		{name: "tags", kind: kindStringList},
		{name: "available", kind: kindBool},
	}}

	menuCategorySpec = objectSpec{fields: []field{
		{name: "name", kind: kindString, required: true, maxLen: 200},
		{name: "description", kind: kindString},
		{name: "items", kind: kindObjectList, required: true, object: &menuItemSpec},
	}}

	menuSpec = objectSpec{fields: []field{
		{name: "title", kind: kindString, maxLen: 200},
		{name: "currency", kind: kindString, maxLen: 3},
		{name: "categories", kind: kindObjectList, required: true, object: &menuCategorySpec},
	}}

	galleryImageSpec = objectSpec{fields: []field{
		{name: "url", kind: kindURL, required: true},
		{name: "alt", kind: kindString, maxLen: 300},
		{name: "caption", kind: kindString, maxLen: 500},
	}}

	gallerySpec = objectSpec{fields: []field{
		{name: "title", kind: kindString, maxLen: 200},
		{name: "columns", kind: kindNumber},
		{name: "images", kind: kindObjectList, required: true, object: &galleryImageSpec},
	}}

	contactSpec = objectSpec{fields: []field{
		{name: "heading", kind: kindString, maxLen: 200},
		{name: "email", kind: kindString, maxLen: 320},
		{name: "phone", kind: kindString, maxLen: 40},
		{name: "address", kind: kindString},
		{name: "mapUrl", kind: kindURL},
	}}

	hoursEntrySpec = objectSpec{fields: []field{
		{name: "day", kind: kindString, required: true, maxLen: 20},
		{name: "open", kind: kindString, maxLen: 10},
		{name: "close", kind: kindString, maxLen: 10},
		{name: "closed", kind: kindBool},
	}}

	hoursSpec = objectSpec{fields: []field{
		{name: "heading", kind: kindString, maxLen: 200},
		{name: "entries", kind: kindObjectList, required: true, object: &hoursEntrySpec},
		{name: "note", kind: kindString},
	}}
)

func specFor(componentType ComponentType) (*objectSpec, bool) {
	switch componentType {
	case TypeHero:
		return &heroSpec, true
	case TypeText:
		return &textSpec, true
	case TypeMenu:
		return &menuSpec, true
	case TypeGallery:
		return &gallerySpec, true
	case TypeContact:
		return &contactSpec, true
	case TypeHours:
		return &hoursSpec, true
	default:
		return nil, false
	}
}
