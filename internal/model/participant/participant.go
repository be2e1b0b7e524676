package participant

// Participant is a candidate whose externally ingested profile has been summarized.
// Context is opaque text; the assessment core never parses it.
type Participant struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Role    string `json:"role,omitempty"`    // 应聘岗位
	Context string `json:"context,omitempty"` // 简历/GitHub/LinkedIn 汇总文本
}

// Seed provides demo participants so the service is usable without an ingestion pipeline.
func Seed() []Participant {
	return []Participant{
		{
			ID:   "demo-backend",
			Name: "Alex Chen",
			Role: "Senior Backend Engineer",
			Context: `Name: Alex Chen
Target role: Senior Backend Engineer
Experience: 7 years. Built a real-time chat platform (Go, Redis, WebSocket) serving 2M DAU.
Led migration of a payment monolith to event-driven services on NATS.
Skills: Go, PostgreSQL, Redis, Kubernetes, gRPC, observability.
GitHub: 40 public repositories, maintainer of a rate-limiting library.`,
		},
		{
			ID:   "demo-frontend",
			Name: "Maya Patel",
			Role: "Frontend Engineer",
			Context: `Name: Maya Patel
Target role: Frontend Engineer
Experience: 4 years. Shipped a design system used by 12 product teams.
Skills: TypeScript, React, accessibility audits, performance budgets.
Resume notes: mentors junior engineers, ran the company's internal frontend guild.`,
		},
	}
}
