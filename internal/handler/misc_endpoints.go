package handler

import (
	"net/http"

	"vibedoc-server/internal/model"

	"github.com/gin-gonic/gin"
)

// exampleConfigurations - готовые идеи для demo-каталога.
var exampleConfigurations = []model.ExampleConfiguration{
	{
		Name: "Habit tracker",
		Idea: "A mobile-friendly habit tracker that builds streaks and sends gentle reminders",
	},
	{
		Name:         "Team knowledge base",
		Idea:         "An internal wiki with full-text search and markdown editing for small engineering teams",
		ReferenceURL: "https://github.com/gollum/gollum",
	},
	{
		Name: "Expense splitter",
		Idea: "A web app to split shared expenses between roommates with settlement suggestions",
	},
	{
		Name:         "Recipe box",
		Idea:         "A recipe collection with tagging, ingredient-based search and weekly meal planning",
		ReferenceURL: "https://github.com/TandoorRecipes/recipes",
	},
	{
		Name: "Standup bot",
		Idea: "A chat bot that collects async standup updates and posts a daily digest",
	},
}

// getMCPStatus проверяет доступность внешних MCP сервисов.
func (h *PlanHandler) getMCPStatus(c *gin.Context) {
	statuses := h.mcpStatus.Status(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"services": statuses})
}

// listExamples возвращает каталог готовых примеров идей.
func (h *PlanHandler) listExamples(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"examples": exampleConfigurations})
}
