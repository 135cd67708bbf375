package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bess-impact/internal/api/models"
	"bess-impact/internal/dispatch"
	"bess-impact/internal/meritorder"
)

// ListPolicies handles GET /api/v1/policies
func ListPolicies(c *gin.Context) {
	def := meritorder.DefaultPolicy()
	workers := models.ParameterInfo{
		Name:        "workers",
		Type:        "int",
		Description: "Concurrent day solves (0 = one per CPU)",
		Default:     0,
	}
	policies := []models.PolicyInfo{
		{
			Name:        string(dispatch.SOCCarry),
			Kind:        "soc_policy",
			Description: "Each day starts from the previous day's final state of charge. Days are solved in order.",
			Parameters: []models.ParameterInfo{
				{Name: "initial_soc_mwh", Type: "float", Description: "State of charge before the first day", Default: 0.0},
			},
		},
		{
			Name:        string(dispatch.SOCReset),
			Kind:        "soc_policy",
			Description: "Every day starts from the initial state of charge. Days are solved concurrently.",
			Parameters: []models.ParameterInfo{
				{Name: "initial_soc_mwh", Type: "float", Description: "State of charge at the start of every day", Default: 0.0},
				workers,
			},
		},
		{
			Name:        string(meritorder.ModeQuantile),
			Kind:        "merit_order_mode",
			Description: "Breakpoints at equal-count residual load quantiles.",
			Parameters: []models.ParameterInfo{
				{Name: "merit_order_segments", Type: "int", Description: "Number of linear segments", Default: def.Segments},
			},
		},
		{
			Name:        string(meritorder.ModeFixed),
			Kind:        "merit_order_mode",
			Description: "Breakpoints given explicitly in MW of residual load.",
			Parameters: []models.ParameterInfo{
				{Name: "merit_order_breakpoints", Type: "list", Description: "Residual load thresholds in MW"},
			},
		},
		{
			Name:        string(meritorder.ModeSearch),
			Kind:        "merit_order_mode",
			Description: "Breakpoints chosen from a quantile grid to minimize squared error.",
			Parameters: []models.ParameterInfo{
				{Name: "merit_order_segments", Type: "int", Description: "Number of linear segments", Default: def.Segments},
			},
		},
	}

	c.JSON(http.StatusOK, gin.H{"policies": policies})
}
