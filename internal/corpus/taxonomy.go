package corpus

import (
	"os"

	"chatintent/domain/intent"
	"chatintent/internal/errors"

	"gopkg.in/yaml.v3"
)

// LoadTaxonomy reads a taxonomy YAML file:
//
//	user_types:
//	  - user_type: admin
//	    repeat: 5
//	    intents:
//	      - key: list_restaurants
//	        templates: ["Show all restaurants", ...]
func LoadTaxonomy(path string) (intent.Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return intent.Taxonomy{}, errors.Wrapf(errors.WithCode(errors.CodeConfiguration, err), "failed to read taxonomy %s", path)
	}

	var t intent.Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return intent.Taxonomy{}, errors.Wrapf(errors.WithCode(errors.CodeConfiguration, err), "failed to parse taxonomy %s", path)
	}
	if err := t.Validate(); err != nil {
		return intent.Taxonomy{}, errors.Wrapf(err, "invalid taxonomy %s", path)
	}
	return t, nil
}

// DefaultTaxonomy is the restaurant-ordering chatbot taxonomy: admin intents
// replicated 5 times, customer intents 8 times.
func DefaultTaxonomy() intent.Taxonomy {
	return intent.Taxonomy{Groups: []intent.TaxonomyGroup{
		{
			UserType: intent.UserTypeAdmin,
			Repeat:   5,
			Intents: []intent.IntentTemplates{
				{Key: "list_restaurants", Templates: []string{
					"Show all restaurants", "List restaurants", "Display restaurants",
					"What restaurants do we have?", "Show restaurant list",
					"Get all restaurants", "View restaurants", "Restaurant list please",
					"Can you show restaurants?", "I want to see all restaurants",
					"Show me the restaurants", "Display all restaurants",
					"List all restaurants in system", "What restaurants are available?",
					"Show available restaurants", "Restaurants menu",
					"Show restaurant database", "View all restaurants",
					"Display restaurant list", "Show me restaurants",
					"Need restaurant list", "Give me restaurant details",
					"Restaurant information", "All restaurant data",
					"Current restaurants", "Active restaurants",
				}},
				{Key: "list_foods", Templates: []string{
					"Show all food items", "List food items", "Display menu",
					"What food items do we have?", "Show food list",
					"Get all food items", "View food menu", "Food list please",
					"Can you show food items?", "I want to see all foods",
					"Show me the food menu", "Display all foods",
					"List all food items", "What food is available?",
					"Show available food", "Food menu",
					"Show food database", "View all food items",
					"Display food list", "Show me food items",
					"Menu items list", "All dishes available",
					"Current food menu", "Food inventory",
				}},
				{Key: "list_orders", Templates: []string{
					"Show all orders", "List orders", "Display orders",
					"What orders do we have?", "Show order list",
					"Get all orders", "View orders", "Order list please",
					"Can you show orders?", "I want to see all orders",
					"Show me the orders", "Display all orders",
					"List all orders", "What orders are pending?",
					"Show recent orders", "Orders database",
					"Show order database", "View all orders",
					"Display order list", "Show me orders",
					"Order history", "All placed orders",
					"Current orders status", "Pending orders list",
				}},
				{Key: "add_restaurant", Templates: []string{
					"Add new restaurant", "Create restaurant", "New restaurant",
					"Add a restaurant", "Create new restaurant",
					"Register restaurant", "Add restaurant to system",
					"Create a restaurant", "Add new food place",
					"Register new restaurant", "Add restaurant entry",
					"Create restaurant entry", "Add dining place",
					"Register food outlet", "Add new outlet",
					"Create food establishment", "Add restaurant profile",
					"Register restaurant profile", "Add new restaurant entry",
					"Add restaurant: Pizza Palace, 123 Main St, 555-0123",
					"Create restaurant: Burger King, 456 Oak Ave, 555-0456",
					"New restaurant: Sushi Place, 789 Pine Rd, 555-0789",
				}},
				{Key: "add_food", Templates: []string{
					"Add new food item", "Create food item", "New food item",
					"Add a food item", "Create new food",
					"Register food item", "Add food to menu",
					"Create a food item", "Add new dish",
					"Register new food", "Add food entry",
					"Create food entry", "Add new menu item",
					"Register dish", "Add new food product",
					"Create food product", "Add menu item",
					"Register menu item", "Add new food entry",
					"Add food: Burger, Beef burger with cheese, 180, Fast Food, Pizza Palace",
					"Create food: Pizza, Margherita pizza, 300, Italian, Pizza Palace",
					"Add dish: Pasta, Creamy Alfredo pasta, 250, Italian, Italian Bistro",
				}},
				{Key: "update_order_status", Templates: []string{
					"Update order status", "Change order status", "Modify order status",
					"Update order state", "Change order state",
					"Modify order state", "Update delivery status",
					"Change delivery status", "Update order progress",
					"Change order progress", "Mark order as delivered",
					"Update order to delivered", "Change status of order",
					"Modify order delivery", "Update order completion",
					"Update order abc123 to Delivered",
					"Change order xyz789 to Preparing",
					"Mark order def456 as Completed",
				}},
				{Key: "delete_restaurant", Templates: []string{
					"Delete restaurant", "Remove restaurant", "Delete a restaurant",
					"Remove a restaurant", "Delete restaurant entry",
					"Remove restaurant from system", "Delete food place",
					"Remove dining place", "Delete restaurant profile",
					"Remove restaurant entry", "Delete outlet",
					"Remove food outlet", "Delete establishment",
					"Remove food establishment", "Delete restaurant record",
				}},
				{Key: "delete_food", Templates: []string{
					"Delete food item", "Remove food item", "Delete a food item",
					"Remove a food item", "Delete food entry",
					"Remove food from menu", "Delete dish",
					"Remove dish", "Delete menu item",
					"Remove menu item", "Delete food product",
					"Remove food product", "Delete food record",
				}},
				{Key: "view_stats", Templates: []string{
					"Show statistics", "View dashboard", "Display stats",
					"Show report", "View summary",
					"Display analytics", "Show performance",
					"View metrics", "Display dashboard",
					"Show business stats", "View sales data",
					"Display revenue report", "Show order analytics",
				}},
			},
		},
		{
			UserType: intent.UserTypeCustomer,
			Repeat:   8,
			Intents: []intent.IntentTemplates{
				{Key: "search_food_name", Templates: []string{
					"Find pizza", "Search for burger", "Look for pasta",
					"Find sushi", "Search salad", "Look for rice",
					"Find noodles", "Search sandwich", "Look for dessert",
					"Find beverages", "Search drinks", "Look for appetizers",
				}},
				{Key: "search_food_category", Templates: []string{
					"Find Italian food", "Search Chinese", "Look for Mexican",
					"Find Indian cuisine", "Search Japanese", "Look for Thai",
					"Find fast food", "Search vegetarian", "Look for vegan options",
				}},
				{Key: "view_cart", Templates: []string{
					"Show cart", "View cart", "Display cart",
					"What's in my cart?", "Show my cart",
					"View my cart", "Display my cart",
					"Show shopping cart", "View basket",
					"Show basket", "What do I have in cart?",
				}},
				{Key: "add_to_cart", Templates: []string{
					"Add to cart", "Put in cart", "Add item to cart",
					"Add to basket", "Put in basket",
					"Add to shopping cart", "Include in order",
					"Add this to cart", "Put this in cart",
				}},
				{Key: "place_order", Templates: []string{
					"Checkout", "Place order", "Order now",
					"Proceed to checkout", "Complete order",
					"Make order", "Submit order",
					"Finalize order", "Confirm order",
				}},
				{Key: "order_history", Templates: []string{
					"My orders", "Order history", "Past orders",
					"View my orders", "Show my orders",
					"Display my orders", "Order tracking",
					"My order history", "Previous orders",
				}},
				{Key: "track_order", Templates: []string{
					"Track order", "Where is my order", "Order status",
					"Check order progress", "Order delivery status",
					"My order tracking", "Where's my food",
				}},
			},
		},
	}}
}
