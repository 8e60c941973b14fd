package omnivore

import "github.com/ajitpratap0/nebula-omnivore/pkg/stream"

const (
	locationPath   = "/locations/{location_id}"
	menuItemPath   = locationPath + "/menu/items/{menu_item_id}"
	modifierPath   = locationPath + "/menu/modifiers/{menu_modifier_id}"
	ticketPath     = locationPath + "/tickets/{ticket_id}"
	ticketItemPath = ticketPath + "/items/{ticket_item_id}"
)

var (
	pkID         = []string{"id"}
	pkIDLocation = []string{"id", "location_id"}
)

// Streams returns the definitions of every Omnivore stream.
func Streams() []stream.Definition {
	return []stream.Definition{
		{
			Name:               "locations",
			PathTemplate:       "/locations",
			DetailPathTemplate: locationPath,
			FilterKey:          "locations",
			PrimaryKeys:        pkID,
			ContextKey:         "location_id",
		},
		child("category_types", "locations", locationPath+"/menu/category_types", pkIDLocation),
		child("discounts", "locations", locationPath+"/discounts", pkID),
		child("employees", "locations", locationPath+"/employees", pkIDLocation),
		child("menu_categories", "locations", locationPath+"/menu/categories", pkIDLocation),
		withContext(child("menu_items", "locations", locationPath+"/menu/items", pkIDLocation), "menu_item_id"),
		child("menu_item_categories", "menu_items", menuItemPath+"/categories", pkIDLocation),
		child("menu_item_option_sets", "menu_items", menuItemPath+"/option_sets", pkID),
		child("menu_item_price_levels", "menu_items", menuItemPath+"/price_levels", pkIDLocation),
		withContext(child("menu_modifier_groups", "locations", locationPath+"/menu/modifier_groups", pkID), "modifier_group_id"),
		child("menu_modifier_group_modifiers", "menu_modifier_groups", locationPath+"/menu/modifier_groups/{modifier_group_id}/modifiers", pkIDLocation),
		withContext(child("menu_modifiers", "locations", locationPath+"/menu/modifiers", pkID), "menu_modifier_id"),
		child("menu_modifier_categories", "menu_modifiers", modifierPath+"/categories", pkID),
		child("menu_modifier_option_sets", "menu_modifiers", modifierPath+"/option_sets", pkIDLocation),
		child("menu_modifier_price_levels", "menu_modifiers", modifierPath+"/price_levels", pkIDLocation),
		child("order_types", "locations", locationPath+"/order_types", pkID),
		child("out_of_stock_menu_items", "locations", locationPath+"/menu/oos/items", pkID),
		child("out_of_stock_menu_modifiers", "locations", locationPath+"/menu/oos/modifiers", pkIDLocation),
		child("revenue_centers", "locations", locationPath+"/revenue_centers", pkIDLocation),
		child("tables", "locations", locationPath+"/tables", pkID),
		child("tender_types", "locations", locationPath+"/tender_types", pkID),
		child("void_types", "locations", locationPath+"/void_types", pkID),
		{
			Name:           "tickets",
			Parent:         "locations",
			PathTemplate:   locationPath + "/tickets",
			PrimaryKeys:    pkID,
			ReplicationKey: "opened_at",
			ContextKey:     "ticket_id",
		},
		child("ticket_discounts", "tickets", ticketPath+"/discounts", pkID),
		child("ticket_payments", "tickets", ticketPath+"/payments", pkIDLocation),
		child("ticket_service_charges", "tickets", ticketPath+"/service_charges", pkIDLocation),
		withContext(child("ticket_items", "tickets", ticketPath+"/items", pkID), "ticket_item_id"),
		child("ticket_item_discounts", "ticket_items", ticketItemPath+"/discounts", pkIDLocation),
		child("ticket_item_modifiers", "ticket_items", ticketItemPath+"/modifiers", pkIDLocation),
		withContext(child("voided_ticket_items", "tickets", ticketPath+"/voided_items", pkID), "voided_ticket_item_id"),
		child("voided_ticket_item_modifiers", "voided_ticket_items", ticketPath+"/voided_items/{voided_ticket_item_id}/modifiers", pkID),
	}
}

// NewCatalog builds the validated Omnivore catalog.
func NewCatalog() (*stream.Catalog, error) {
	return stream.NewCatalog(Streams()...)
}

func child(name, parent, path string, pks []string) stream.Definition {
	return stream.Definition{
		Name:         name,
		Parent:       parent,
		PathTemplate: path,
		PrimaryKeys:  append([]string(nil), pks...),
	}
}

func withContext(d stream.Definition, key string) stream.Definition {
	d.ContextKey = key
	return d
}
