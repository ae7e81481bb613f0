package domain

// DefaultTemplates is the built-in template set seeded into empty stores.
func DefaultTemplates() []*Template {
	return []*Template{
		{
			Name:              TemplateName(EventUserRegistered, ChannelEmail),
			Channel:           ChannelEmail,
			Subject:           "Welcome, {{firstName}}!",
			Body:              "<p>Hi {{firstName}} {{lastName}},</p><p>your account <b>{{username}}</b> is ready.</p>",
			RequiredVariables: []string{"username", "firstName"},
		},
		{
			Name:              TemplateName(EventSessionCompleted, ChannelEmail),
			Channel:           ChannelEmail,
			Subject:           "Results for {{assessmentName}}",
			Body:              "<p>Hi {{username}},</p><p>you completed <b>{{assessmentName}}</b> at {{completionTime}}.</p><p>Score: {{score}} ({{status}})</p>",
			RequiredVariables: []string{"username", "assessmentName", "score"},
		},
		{
			Name:              TemplateName(EventProctoringViolation, ChannelEmail),
			Channel:           ChannelEmail,
			Subject:           "[{{severity}}] Proctoring alert: {{violationType}}",
			Body:              "<p>{{username}} triggered <b>{{violationType}}</b> in session {{sessionId}} at {{timestamp}}.</p>",
			RequiredVariables: []string{"username", "sessionId", "violationType"},
		},
		{
			Name:              TemplateName(EventProctoringViolation, ChannelPush),
			Channel:           ChannelPush,
			Subject:           "Proctoring alert",
			Body:              "{{username}}: {{violationType}} ({{severity}}) in session {{sessionId}}",
			RequiredVariables: []string{"username", "violationType"},
		},
		{
			Name:              TemplateName(EventAssessmentPublished, ChannelEmail),
			Channel:           ChannelEmail,
			Subject:           "New assessment: {{assessmentName}}",
			Body:              "<p>Hi {{username}},</p><p><b>{{assessmentName}}</b> has been assigned to you. Duration: {{duration}} minutes, due {{dueDate}}.</p>",
			RequiredVariables: []string{"username", "assessmentName"},
		},
		{
			Name:              TemplateName(EventAssessmentPublished, ChannelPush),
			Channel:           ChannelPush,
			Subject:           "New assessment assigned",
			Body:              "{{assessmentName}} is due {{dueDate}}",
			RequiredVariables: []string{"assessmentName"},
		},
	}
}
