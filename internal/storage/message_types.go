package storage

import "time"

// ResumeUploadedMessage 简历上传事件，发布到摄取交换机后由后台worker消费
type ResumeUploadedMessage struct {
	CandidateID       string            `json:"candidate_id"`                  // 候选人ID，上传时生成
	OriginalObjectKey string            `json:"original_object_key"`           // 原始文件在MinIO中的对象键
	OriginalFilename  string            `json:"original_filename,omitempty"`   // 原始文件名
	ContentType       string            `json:"content_type,omitempty"`        // 原始文件的Content-Type
	UploadedAt        time.Time         `json:"uploaded_at"`                   // 上传时间戳
	Metadata          map[string]string `json:"metadata,omitempty"`            // 调用方附加的元数据
	ContentMD5        string            `json:"content_md5,omitempty"`         // 文件内容MD5，用于失败时回滚去重记录
	RetryCount        int               `json:"retry_count,omitempty"`         // 已重试次数
}
