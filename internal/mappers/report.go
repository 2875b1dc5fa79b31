package mappers

import (
	"github.com/cutekitek/kernel-annotator/internal/annotator"
	"github.com/cutekitek/kernel-annotator/internal/repository/dto"
	"github.com/cutekitek/kernel-annotator/internal/repository/models"
)

func BootResultToReport(req *models.AnnotationRequest, runId string, result *dto.BootResult, results *annotator.ResultSet) *models.AnnotationReport {
	resp := &models.AnnotationReport{
		Id:            req.Id,
		RunId:         runId,
		Status:        annotationStatus(result.Status),
		Total:         results.Total(),
		ExecutionTime: result.ExecutionTime.Milliseconds(),
		MemoryUsage:   result.MemoryUsage,
		Error:         result.Error,
		Cases:         make([]models.CaseScore, 0, results.Len()),
	}
	for _, c := range results.Results() {
		resp.Cases = append(resp.Cases, models.CaseScore{Name: c.Name, Score: c.Score})
	}
	return resp
}

// InternalErrorReport is the answer for jobs that failed before the machine
// produced any result.
func InternalErrorReport(req *models.AnnotationRequest, runId string, msg string) *models.AnnotationReport {
	return &models.AnnotationReport{
		Id:     req.Id,
		RunId:  runId,
		Status: models.AnnotationStatusInternalError,
		Cases:  make([]models.CaseScore, 0),
		Error:  msg,
	}
}

func annotationStatus(s dto.BootStatus) models.AnnotationStatus {
	switch s {
	case dto.BootStatusFinished:
		return models.AnnotationStatusComplete
	case dto.BootStatusBootError:
		return models.AnnotationStatusBootFailed
	case dto.BootStatusTimeout:
		return models.AnnotationStatusTimeout
	case dto.BootStatusOutOfMemory:
		return models.AnnotationStatusOutOfMemory
	case dto.BootStatusOutputOverflow:
		return models.AnnotationStatusOutputOverflow
	default:
		return models.AnnotationStatusInternalError
	}
}
