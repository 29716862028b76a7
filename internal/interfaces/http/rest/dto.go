package rest

import "taxonomy-backend/internal/domain/category"

// NodeResponse is the JSON form of a materialized subtree.
type NodeResponse struct {
	Category category.Category       `json:"category"`
	Children []NodeResponse          `json:"children"`
	Items    []category.CategoryItem `json:"items"`
}

// NewNodeResponse converts node and everything below it.
func NewNodeResponse(node *category.CategoryNode) NodeResponse {
	children := node.ChildCategories()
	resp := NodeResponse{
		Category: node.Category(),
		Children: make([]NodeResponse, 0, len(children)),
		Items:    node.ChildItems(),
	}
	if resp.Items == nil {
		resp.Items = []category.CategoryItem{}
	}
	for _, child := range children {
		resp.Children = append(resp.Children, NewNodeResponse(child))
	}
	return resp
}
