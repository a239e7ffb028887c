package outreach

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jimdaga/influencer-crm/internal/engagements"
)

// templateSummary is the API shape of a registered template
type templateSummary struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Format      string   `json:"format"`
	Subject     string   `json:"subject"`
	Variables   []string `json:"variables"`
}

// Register mounts the outreach endpoints on g.
func (s *Sender) Register(g *gin.RouterGroup) {
	g.GET("/templates", s.listTemplates)
	g.POST("/engagements/:id/outreach", s.send)
}

func (s *Sender) listTemplates(c *gin.Context) {
	manifests := s.registry.List()
	if t := c.Query("type"); t != "" {
		manifests = s.registry.ByType(t)
	}

	out := make([]templateSummary, 0, len(manifests))
	for _, m := range manifests {
		out = append(out, templateSummary{
			Name:        m.Name,
			Type:        m.Type,
			Description: m.Description,
			Format:      m.Format,
			Subject:     m.Subject,
			Variables:   m.Variables,
		})
	}
	c.JSON(http.StatusOK, gin.H{"templates": out})
}

func (s *Sender) send(c *gin.Context) {
	id, ok := engagements.ParseID(c)
	if !ok {
		return
	}

	var req struct {
		Template string `json:"template"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Template == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "template: is required"})
		return
	}

	result, err := s.Send(c.Request.Context(), id, req.Template)
	if err != nil {
		engagements.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
