package topic

// DefaultAnchors is the stock anchor set for a personal knowledge vault.
// Callers with domain-specific vaults should supply their own.
func DefaultAnchors() map[string]Anchor {
	return map[string]Anchor{
		"machine_learning": {
			Examples: []string{
				"training neural networks and deep learning models",
				"supervised learning with labeled datasets",
				"model evaluation metrics and overfitting",
				"gradient descent and backpropagation",
			},
			Keywords: []string{
				"machine", "learning", "model", "neural", "network", "training",
				"dataset", "algorithm", "gradient", "classifier", "embedding",
			},
		},
		"data_analysis": {
			Examples: []string{
				"exploratory data analysis with pandas dataframes",
				"statistical hypothesis testing and confidence intervals",
				"data visualization with charts and plots",
				"cleaning and transforming tabular data",
			},
			Keywords: []string{
				"data", "analysis", "statistics", "visualization", "dataframe",
				"chart", "correlation", "regression", "metric", "aggregation",
			},
		},
		"programming": {
			Examples: []string{
				"writing and refactoring source code",
				"debugging runtime errors and stack traces",
				"designing APIs and software architecture",
				"version control with git branches",
			},
			Keywords: []string{
				"code", "function", "bug", "api", "refactor", "compile",
				"repository", "interface", "test", "deploy",
			},
		},
		"philosophy": {
			Examples: []string{
				"epistemology and the nature of knowledge",
				"ethical frameworks and moral reasoning",
				"consciousness and the philosophy of mind",
				"stoicism and practical wisdom",
			},
			Keywords: []string{
				"philosophy", "ethics", "epistemology", "consciousness",
				"metaphysics", "stoicism", "argument", "virtue", "meaning",
			},
		},
		"productivity": {
			Examples: []string{
				"task management and weekly planning routines",
				"note taking systems and knowledge management",
				"habit building and time blocking",
				"goal setting and personal reviews",
			},
			Keywords: []string{
				"task", "habit", "planning", "routine", "review", "goal",
				"schedule", "workflow", "note", "journal",
			},
		},
	}
}
