package utils

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResolvePaths resolves a list of paths relative to a base directory.
// Absolute paths are returned unchanged, relative paths are resolved
// relative to the base directory.
func ResolvePaths(paths []string, baseDir string) []string {
	if len(paths) == 0 {
		return nil
	}

	resolved := make([]string, 0, len(paths))
	for _, path := range paths {
		if filepath.IsAbs(path) {
			resolved = append(resolved, path)
		} else {
			resolved = append(resolved, filepath.Join(baseDir, path))
		}
	}
	return resolved
}

// modelSuffixReplacer makes model names safe for use in file names.
var modelSuffixReplacer = strings.NewReplacer("/", "_", ".", "_")

// ModelSuffix returns the model name with path and dot separators replaced,
// so "qwen/qwen-2.5" becomes "qwen_qwen-2_5".
func ModelSuffix(model string) string {
	return modelSuffixReplacer.Replace(model)
}

// AssessmentResultsPath names the checkpoint file of an assessment run.
// ext is the store extension, "csv" or "db".
func AssessmentResultsPath(resultsDir, mode, model, ext string) string {
	name := fmt.Sprintf("mastery_assessment_results_%s_%s.%s", mode, ModelSuffix(model), ext)
	return filepath.Join(resultsDir, name)
}

// AssessmentManifestPath names the manifest file of an assessment run.
func AssessmentManifestPath(resultsDir, mode, model string) string {
	name := fmt.Sprintf("mastery_assessment_manifest_%s_%s.csv", mode, ModelSuffix(model))
	return filepath.Join(resultsDir, name)
}

// AssessmentErrorLogPath names the error log of an assessment run.
func AssessmentErrorLogPath(resultsDir, mode, model string) string {
	name := fmt.Sprintf("assessment_errors_%s_%s.txt", mode, ModelSuffix(model))
	return filepath.Join(resultsDir, name)
}

// TutoringResultsPath names the checkpoint file of a tutoring run.
func TutoringResultsPath(resultsDir, model, ext string) string {
	name := fmt.Sprintf("tutoring_results_%s.%s", ModelSuffix(model), ext)
	return filepath.Join(resultsDir, name)
}

// TutoringManifestPath names the manifest file of a tutoring run.
func TutoringManifestPath(resultsDir, model string) string {
	name := fmt.Sprintf("tutoring_manifest_%s.csv", ModelSuffix(model))
	return filepath.Join(resultsDir, name)
}

// TutoringErrorLogPath names the error log of a tutoring run.
func TutoringErrorLogPath(resultsDir, model string) string {
	name := fmt.Sprintf("tutoring_errors_%s.txt", ModelSuffix(model))
	return filepath.Join(resultsDir, name)
}
